package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

// ImageClient renders subject into an image file at outputPath.
type ImageClient interface {
	GenerateImage(ctx context.Context, subject, outputPath string) error
}

// ComfyUISettings configures the txt2img workflow sent to ComfyUI.
type ComfyUISettings struct {
	BaseURL        string
	Checkpoint     string
	Lora           string
	LoraStrength   float64
	StylePrompt    string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	PollInterval   time.Duration
	Timeout        time.Duration
}

// DefaultComfyUISettings fills everything but the endpoint and model names.
func DefaultComfyUISettings() ComfyUISettings {
	return ComfyUISettings{
		LoraStrength:   0.8,
		StylePrompt:    "whimsical storybook illustration style",
		NegativePrompt: "ugly, deformed, blurry, photorealistic",
		Width:          1024,
		Height:         1024,
		Steps:          25,
		PollInterval:   2 * time.Second,
		Timeout:        10 * time.Minute,
	}
}

// ComfyUIClient queues a workflow, waits for it and downloads the first image.
type ComfyUIClient struct {
	settings ComfyUISettings
	client   *http.Client
	policy   retry.Policy
	logger   logging.Logger
	clientID string
}

func NewComfyUIClient(settings ComfyUISettings, client *http.Client, policy retry.Policy, logger logging.Logger) (*ComfyUIClient, error) {
	if settings.BaseURL == "" {
		return nil, errors.New("comfyui base url is required")
	}
	if settings.Checkpoint == "" {
		return nil, errors.New("comfyui checkpoint is required")
	}
	defaults := DefaultComfyUISettings()
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaults.PollInterval
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaults.Timeout
	}
	if settings.Width <= 0 || settings.Height <= 0 {
		settings.Width, settings.Height = defaults.Width, defaults.Height
	}
	if settings.Steps <= 0 {
		settings.Steps = defaults.Steps
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ComfyUIClient{
		settings: settings,
		client:   client,
		policy:   policy,
		logger:   logger,
		clientID: uuid.NewString(),
	}, nil
}

type workflowNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

type queuePromptReq struct {
	Prompt   map[string]workflowNode `json:"prompt"`
	ClientID string                  `json:"client_id"`
}

type queuePromptResp struct {
	PromptID   string         `json:"prompt_id"`
	NodeErrors map[string]any `json:"node_errors"`
	Error      any            `json:"error"`
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

// GenerateImage implements ImageClient.
func (c *ComfyUIClient) GenerateImage(ctx context.Context, subject, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	log := c.logger.WithField("output", outputPath)

	promptID, err := c.queuePrompt(ctx, c.workflow(subject))
	if err != nil {
		return fmt.Errorf("%w: image: queue prompt: %w", ErrGeneration, err)
	}
	log.WithField("prompt_id", promptID).Info("comfyui prompt queued")

	img, err := c.waitForImage(ctx, promptID)
	if err != nil {
		return fmt.Errorf("%w: image: %w", ErrGeneration, err)
	}

	data, err := c.download(ctx, img)
	if err != nil {
		return fmt.Errorf("%w: image: download: %w", ErrGeneration, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("%w: image: %w", ErrGeneration, err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: image: %w", ErrGeneration, err)
	}
	log.WithField("bytes", len(data)).Info("image written")
	return nil
}

func (c *ComfyUIClient) workflow(subject string) map[string]workflowNode {
	s := c.settings
	positive := subject
	if s.StylePrompt != "" {
		positive = subject + ", " + s.StylePrompt
	}
	clip := []any{"4", 1}
	model := []any{"4", 0}
	nodes := map[string]workflowNode{
		"4": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{"ckpt_name": s.Checkpoint}},
		"5": {ClassType: "EmptyLatentImage", Inputs: map[string]any{"width": s.Width, "height": s.Height, "batch_size": 1}},
		"8": {ClassType: "VAEDecode", Inputs: map[string]any{"samples": []any{"3", 0}, "vae": []any{"4", 2}}},
		"9": {ClassType: "SaveImage", Inputs: map[string]any{"filename_prefix": "poof", "images": []any{"8", 0}}},
	}
	if s.Lora != "" {
		nodes["10"] = workflowNode{ClassType: "LoraLoader", Inputs: map[string]any{
			"lora_name":      s.Lora,
			"strength_model": s.LoraStrength,
			"strength_clip":  s.LoraStrength,
			"model":          []any{"4", 0},
			"clip":           []any{"4", 1},
		}}
		clip = []any{"10", 1}
		model = []any{"10", 0}
	}
	nodes["6"] = workflowNode{ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": positive, "clip": clip}}
	nodes["7"] = workflowNode{ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": s.NegativePrompt, "clip": clip}}
	nodes["3"] = workflowNode{ClassType: "KSampler", Inputs: map[string]any{
		"seed":         rand.Int63n(1 << 48),
		"steps":        s.Steps,
		"cfg":          7,
		"sampler_name": "euler",
		"scheduler":    "normal",
		"denoise":      1,
		"model":        model,
		"positive":     []any{"6", 0},
		"negative":     []any{"7", 0},
		"latent_image": []any{"5", 0},
	}}
	return nodes
}

func (c *ComfyUIClient) queuePrompt(ctx context.Context, nodes map[string]workflowNode) (string, error) {
	body, err := json.Marshal(queuePromptReq{Prompt: nodes, ClientID: c.clientID})
	if err != nil {
		return "", err
	}

	resp, err := retry.DoHTTP(ctx, c.policy, c.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.BaseURL+"/prompt", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var data queuePromptResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.PromptID == "" {
		return "", fmt.Errorf("no prompt_id returned (node_errors=%v error=%v)", data.NodeErrors, data.Error)
	}
	return data.PromptID, nil
}

func (c *ComfyUIClient) waitForImage(ctx context.Context, promptID string) (outputImage, error) {
	ticker := time.NewTicker(c.settings.PollInterval)
	defer ticker.Stop()

	for {
		entry, done, err := c.history(ctx, promptID)
		if err != nil {
			return outputImage{}, err
		}
		if done {
			if entry.Status.StatusStr == "error" {
				return outputImage{}, fmt.Errorf("prompt %s failed in comfyui", promptID)
			}
			for _, out := range entry.Outputs {
				if len(out.Images) > 0 {
					return out.Images[0], nil
				}
			}
			return outputImage{}, fmt.Errorf("prompt %s finished without images", promptID)
		}

		select {
		case <-ctx.Done():
			return outputImage{}, fmt.Errorf("waiting for prompt %s: %w", promptID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// history reports done once ComfyUI lists the prompt with outputs or an error.
func (c *ComfyUIClient) history(ctx context.Context, promptID string) (historyEntry, bool, error) {
	resp, err := retry.DoHTTP(ctx, c.policy, c.client, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.settings.BaseURL+"/history/"+url.PathEscape(promptID), nil)
	})
	if err != nil {
		return historyEntry{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return historyEntry{}, false, fmt.Errorf("history status %d", resp.StatusCode)
	}

	var entries map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return historyEntry{}, false, err
	}
	entry, ok := entries[promptID]
	if !ok {
		return historyEntry{}, false, nil
	}
	done := entry.Status.Completed || entry.Status.StatusStr == "error" || len(entry.Outputs) > 0
	return entry, done, nil
}

func (c *ComfyUIClient) download(ctx context.Context, img outputImage) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", img.Type)

	resp, err := retry.DoHTTP(ctx, c.policy, c.client, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.settings.BaseURL+"/view?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("view status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image body")
	}
	return data, nil
}
