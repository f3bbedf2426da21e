// Package orchestrator sequences the generation and publish calls of a cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"poof_palace_engine/config"
	"poof_palace_engine/generator"
	"poof_palace_engine/logging"
	"poof_palace_engine/monitoring"
	"poof_palace_engine/publisher"
)

// Settings are the non-client inputs of a cycle.
type Settings struct {
	ImageOutputDir   string
	ImagePrefix      string
	ImageExt         string
	VideoPlaceholder string
	Persona          generator.Persona
}

// SettingsFromConfig reads cycle settings. An unreadable lore file is logged
// and skipped.
func SettingsFromConfig(cfg *config.Config, logger logging.Logger) Settings {
	s := Settings{
		ImageOutputDir:   cfg.String("IMAGE_OUTPUT_DIR", "output/images"),
		ImagePrefix:      cfg.String("IMAGE_FILE_PREFIX", "pp"),
		ImageExt:         cfg.String("IMAGE_FILE_EXT", "png"),
		VideoPlaceholder: cfg.String("VIDEO_PLACEHOLDER_PATH", "output/videos/placeholder.mp4"),
		Persona: generator.Persona{
			Brand:          cfg.String("BRAND_NAME", ""),
			Mascot:         cfg.String("MASCOT_NAME", ""),
			NeutralAltText: cfg.Bool("ALT_TEXT_NEUTRAL_ROLE", false),
		},
	}
	if path := cfg.String("LORE_BIBLE_PATH", ""); path != "" {
		lore, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("lore bible not readable; continuing without it")
		} else {
			s.Persona.Lore = string(lore)
		}
	}
	return s
}

// Publishers are the three fan-out targets of a content cycle.
type Publishers struct {
	Instagram publisher.Publisher
	Twitter   publisher.Publisher
	TikTok    publisher.Publisher
}

// Orchestrator owns one client of each kind and runs the cycles.
type Orchestrator struct {
	settings Settings
	text     generator.TextGenerator
	images   generator.ImageClient
	pubs     Publishers
	logger   logging.Logger
	metrics  *monitoring.Metrics
	recorder Recorder
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records cycle and publish metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder hands every CycleReport to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClock replaces time.Now, used for image file names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(settings Settings, text generator.TextGenerator, images generator.ImageClient, pubs Publishers, logger logging.Logger, opts ...Option) (*Orchestrator, error) {
	if text == nil || images == nil {
		return nil, errors.New("text and image clients are required")
	}
	if pubs.Instagram == nil || pubs.Twitter == nil || pubs.TikTok == nil {
		return nil, errors.New("all three publishers are required")
	}
	if settings.ImageOutputDir == "" {
		return nil, errors.New("image output dir is required")
	}
	if settings.ImagePrefix == "" {
		settings.ImagePrefix = "pp"
	}
	if settings.ImageExt == "" {
		settings.ImageExt = "png"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	o := &Orchestrator{
		settings: settings,
		text:     text,
		images:   images,
		pubs:     pubs,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunDailyContentCycle generates one post and publishes it everywhere.
// Generation failures end the cycle and are returned; publish failures are
// only reported.
func (o *Orchestrator) RunDailyContentCycle(ctx context.Context) error {
	report := CycleReport{ID: uuid.NewString(), Kind: KindContent, StartedAt: o.now()}
	log := o.logger.WithField("cycle_id", report.ID)
	log.Info("running daily content cycle")

	err := o.runContent(ctx, log, &report)

	report.FinishedAt = o.now()
	if err != nil {
		report.Error = err.Error()
	}
	o.record(report)
	return err
}

func (o *Orchestrator) runContent(ctx context.Context, log logging.Entry, report *CycleReport) error {
	p := o.settings.Persona

	// 1. ideation
	idea, err := o.text.Generate(ctx, p.IdeaRole(), p.IdeaPrompt())
	if err != nil {
		o.metrics.ObserveCycle("ideation")
		return generationErr("ideation", err)
	}
	report.Idea = idea
	log.WithField("idea", idea).Info("generated idea")

	// 2. image synthesis; nothing is published without an image
	imagePath := o.imagePath()
	if err := o.images.GenerateImage(ctx, idea, imagePath); err != nil {
		o.metrics.ObserveCycle("image")
		log.WithError(err).Error("failed to generate image; aborting cycle")
		return generationErr("image synthesis", err)
	}
	report.ImagePath = imagePath

	// 3. caption and alt text
	caption, err := o.text.Generate(ctx, p.CaptionRole(), p.CaptionPrompt(idea))
	if err != nil {
		o.metrics.ObserveCycle("captions")
		return generationErr("caption", err)
	}
	altText, err := o.text.Generate(ctx, p.AltTextRole(), p.AltTextPrompt(idea))
	if err != nil {
		o.metrics.ObserveCycle("captions")
		return generationErr("alt text", err)
	}
	log.WithField("caption", caption).Info("generated caption")

	// 4. assemble
	post := SocialPost{
		ImagePath:  imagePath,
		Caption:    caption,
		AltText:    altText,
		SourceIdea: idea,
	}

	// 5. fan out
	report.Results = o.publishAll(ctx, post)
	o.metrics.ObserveCycle("published")

	// 6. report
	o.logSummary(log, report.Results)
	return nil
}

func (o *Orchestrator) publishAll(ctx context.Context, post SocialPost) []publisher.Result {
	results := make([]publisher.Result, 0, 3)

	results = append(results, o.publish(ctx, o.pubs.Instagram, publisher.Content{
		MediaPath: post.ImagePath,
		Caption:   post.Caption,
		AltText:   post.AltText,
	}))

	short, err := generator.ShortCaption(ctx, o.text, o.settings.Persona, post.Caption)
	if err != nil {
		res := publisher.Result{Platform: o.pubs.Twitter.Platform(), Message: err.Error()}
		o.metrics.ObservePublish(res.Platform, false)
		results = append(results, res)
	} else {
		results = append(results, o.publish(ctx, o.pubs.Twitter, publisher.Content{
			MediaPath: post.ImagePath,
			Caption:   short,
			AltText:   post.AltText,
		}))
	}

	// TikTok wants video; a placeholder clip stands in until video generation exists.
	results = append(results, o.publish(ctx, o.pubs.TikTok, publisher.Content{
		MediaPath: o.settings.VideoPlaceholder,
		Caption:   post.Caption,
	}))
	return results
}

// publish shields the cycle from a misbehaving publisher.
func (o *Orchestrator) publish(ctx context.Context, p publisher.Publisher, content publisher.Content) (res publisher.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = publisher.Result{Platform: p.Platform(), Message: fmt.Sprintf("panic: %v", r)}
		}
		o.metrics.ObservePublish(res.Platform, res.OK)
	}()
	return p.Publish(ctx, content)
}

func (o *Orchestrator) logSummary(log logging.Entry, results []publisher.Result) {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		parts = append(parts, r.Platform+"="+status)
		log.WithFields(logging.Fields{
			"platform":    r.Platform,
			"ok":          r.OK,
			"status_code": r.StatusCode,
			"message":     r.Message,
		}).Info("platform result")
	}
	log.WithField("results", strings.Join(parts, " ")).Info("content cycle complete")
}

func (o *Orchestrator) imagePath() string {
	name := fmt.Sprintf("%s_%s.%s", o.settings.ImagePrefix, o.now().Format("20060102_150405"), o.settings.ImageExt)
	return filepath.Join(o.settings.ImageOutputDir, name)
}

// RunCommunityAnalysisCycle is a placeholder. It keeps its own schedule and
// does no work yet.
func (o *Orchestrator) RunCommunityAnalysisCycle(ctx context.Context) error {
	return o.stub(KindCommunity, "analyzing community trends (not implemented)")
}

// RunProductPollCycle is a placeholder for a poll carousel post. Not scheduled.
func (o *Orchestrator) RunProductPollCycle(ctx context.Context) error {
	return o.stub(KindPoll, "running product poll cycle (not implemented)")
}

func (o *Orchestrator) stub(kind, msg string) error {
	now := o.now()
	o.logger.WithField("kind", kind).Info(msg)
	o.record(CycleReport{ID: uuid.NewString(), Kind: kind, StartedAt: now, FinishedAt: now})
	return nil
}

func (o *Orchestrator) record(report CycleReport) {
	if o.recorder != nil {
		o.recorder.Record(report)
	}
}

func generationErr(stage string, err error) error {
	if errors.Is(err, generator.ErrGeneration) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%s: %w: %w", stage, generator.ErrGeneration, err)
}
