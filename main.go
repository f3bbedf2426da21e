package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"poof_palace_engine/config"
	"poof_palace_engine/generator"
	"poof_palace_engine/logging"
	"poof_palace_engine/monitoring"
	"poof_palace_engine/orchestrator"
	"poof_palace_engine/publisher"
	"poof_palace_engine/retry"
	"poof_palace_engine/scheduler"
	"poof_palace_engine/server"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

func main() {
	cmd := &cli.Command{
		Name:   "poof-palace",
		Usage:  "Scheduled content bot for The Poof Palace",
		Action: runScheduler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML settings file",
				Value:   "config.yaml",
				Sources: cli.EnvVars("POOF_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "path to the dotenv secret file",
				Value:   ".env",
				Sources: cli.EnvVars("POOF_ENV_FILE"),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "status server listen address (overrides STATUS_ADDR; empty disables)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the scheduler (default)",
				Action: runScheduler,
			},
			{
				Name:   "once",
				Usage:  "run one content cycle now and exit",
				Action: runOnce,
			},
			{
				Name:   "config",
				Usage:  "print the merged configuration with secrets masked",
				Action: printConfig,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *monitoring.Metrics
	status  *server.Server
	orch    *orchestrator.Orchestrator
}

func loadConfig(cmd *cli.Command) (*config.Config, logging.Logger, error) {
	logger := logging.New(logging.Options{})
	cfg, err := config.Load(cmd.String("config"), cmd.String("env"), config.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	logging.Configure(logger, logging.Options{Debug: cfg.IsDebug(), JSON: cfg.IsProduction()})
	return cfg, logger, nil
}

func setup(cmd *cli.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logging.Fields{
		"environment":  cfg.String("ENVIRONMENT", "development"),
		"max_attempts": cfg.MaxAttempts(),
	}).Info("configuration loaded")

	a := &app{cfg: cfg, logger: logger, metrics: monitoring.NewMetrics()}
	a.status, err = server.New(cfg, a.metrics, logger)
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy(cfg.MaxAttempts())
	httpClient := &http.Client{Timeout: cfg.Duration("HTTP_TIMEOUT", 60*time.Second)}

	llm, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	agent, err := generator.NewAgent(llm, policy, logger)
	if err != nil {
		return nil, err
	}

	comfy := generator.DefaultComfyUISettings()
	comfy.BaseURL = cfg.String("COMFYUI_API_BASE_URL", "")
	comfy.Checkpoint = cfg.String("COMFYUI_CHECKPOINT_NAME", "")
	comfy.Lora = cfg.String("COMFYUI_LORA_NAME", "")
	comfy.Timeout = cfg.Duration("COMFYUI_TIMEOUT", comfy.Timeout)
	images, err := generator.NewComfyUIClient(comfy, httpClient, policy, logger)
	if err != nil {
		return nil, err
	}

	pubs := buildPublishers(cfg, httpClient, policy, logger)

	a.orch, err = orchestrator.New(
		orchestrator.SettingsFromConfig(cfg, logger),
		agent, images, pubs, logger,
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithRecorder(a.status),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func buildLLM(cfg *config.Config) (generator.LLMClient, error) {
	timeout := cfg.Duration("LLM_TIMEOUT", 2*time.Minute)
	switch provider := cfg.String("TEXT_PROVIDER", "ollama"); provider {
	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1 and ignores the key.
		return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
			Model:   cfg.String("OLLAMA_MODEL", ""),
			APIKey:  "ollama",
			BaseURL: strings.TrimRight(cfg.String("OLLAMA_API_BASE_URL", ""), "/") + "/v1/",
			Timeout: timeout,
		})
	case "gemini":
		key, err := cfg.Secret("GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
			Model:   cfg.String("GEMINI_MODEL", "gemini-2.0-flash"),
			APIKey:  key,
			BaseURL: cfg.String("GEMINI_API_BASE_URL", defaultGeminiBaseURL),
			Timeout: timeout,
		})
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("%w: text provider %s not supported", config.ErrConfig, provider)
	}
}

// buildPublishers swaps in publisher.Disabled for every platform whose
// credentials are missing, so one absent token never blocks the others.
func buildPublishers(cfg *config.Config, client *http.Client, policy retry.Policy, logger logging.Logger) orchestrator.Publishers {
	disabled := func(name string, err error) publisher.Publisher {
		logger.WithError(err).WithField("platform", name).Warn("publisher disabled")
		return publisher.Disabled{Name: name, Reason: err.Error()}
	}

	var pubs orchestrator.Publishers

	igToken, err := cfg.Secret("INSTAGRAM_ACCESS_TOKEN")
	if err == nil {
		pubs.Instagram, err = publisher.NewInstagram(publisher.InstagramSettings{
			GraphURL:     cfg.String("INSTAGRAM_GRAPH_URL", ""),
			UserID:       cfg.String("INSTAGRAM_USER_ID", ""),
			AccessToken:  igToken,
			MediaBaseURL: cfg.String("IMAGE_PUBLIC_BASE_URL", ""),
		}, client, policy, logger)
	}
	if err != nil {
		pubs.Instagram = disabled("instagram", err)
	}

	bearer, err := cfg.Secret("TWITTER_BEARER_TOKEN")
	if err == nil {
		pubs.Twitter, err = publisher.NewTwitter(publisher.TwitterSettings{
			APIURL:      cfg.String("TWITTER_API_URL", ""),
			UploadURL:   cfg.String("TWITTER_UPLOAD_URL", ""),
			BearerToken: bearer,
		}, client, policy, logger)
	}
	if err != nil {
		pubs.Twitter = disabled("twitter", err)
	}

	ttToken, err := cfg.Secret("TIKTOK_ACCESS_TOKEN")
	if err == nil {
		pubs.TikTok, err = publisher.NewTikTok(publisher.TikTokSettings{
			APIURL:       cfg.String("TIKTOK_API_URL", ""),
			AccessToken:  ttToken,
			PrivacyLevel: cfg.String("TIKTOK_PRIVACY_LEVEL", ""),
		}, client, policy, logger)
	}
	if err != nil {
		pubs.TikTok = disabled("tiktok", err)
	}
	return pubs
}

func statusAddr(cmd *cli.Command, cfg *config.Config) string {
	if addr := cmd.String("addr"); addr != "" {
		return addr
	}
	return cfg.String("STATUS_ADDR", "")
}

func runScheduler(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(a.logger, a.metrics)
	if err := sched.Add("content_cycle", a.cfg.Duration("CONTENT_CYCLE_INTERVAL", 8*time.Hour), a.orch.RunDailyContentCycle); err != nil {
		return err
	}
	if err := sched.Add("community_analysis", a.cfg.Duration("COMMUNITY_CYCLE_INTERVAL", 24*time.Hour), a.orch.RunCommunityAnalysisCycle); err != nil {
		return err
	}
	for _, name := range []string{"content_cycle", "community_analysis"} {
		next, _ := sched.NextRun(name)
		a.logger.WithFields(logging.Fields{"job": name, "first_run": next.Format(time.RFC3339)}).Info("first run planned")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gCtx)
	})
	if addr := statusAddr(cmd, a.cfg); addr != "" {
		g.Go(func() error {
			return a.status.Serve(gCtx, addr)
		})
	}

	a.logger.Info("Poof Palace engine running; press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		a.logger.WithError(err).Error("engine stopped with error")
		return err
	}
	a.logger.Info("engine stopped")
	return nil
}

func runOnce(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("running a single content cycle")
	return a.orch.RunDailyContentCycle(ctx)
}

func printConfig(_ context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg.Summary())
}
