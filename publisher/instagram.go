package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

const defaultGraphURL = "https://graph.facebook.com/v18.0"

// InstagramSettings configures the Instagram Graph API client.
type InstagramSettings struct {
	GraphURL    string
	UserID      string
	AccessToken string
	// MediaBaseURL is where IMAGE_OUTPUT_DIR is served publicly. The Graph
	// API only accepts images by URL.
	MediaBaseURL string
}

type graphIDResp struct {
	ID string `json:"id"`
}

// Instagram publishes single-image posts through a media container.
type Instagram struct {
	base
	settings InstagramSettings
}

func NewInstagram(settings InstagramSettings, client *http.Client, policy retry.Policy, logger logging.Logger) (*Instagram, error) {
	if settings.UserID == "" || settings.AccessToken == "" {
		return nil, errors.New("instagram requires user id and access token")
	}
	if settings.GraphURL == "" {
		settings.GraphURL = defaultGraphURL
	}
	settings.GraphURL = strings.TrimRight(settings.GraphURL, "/")
	return &Instagram{
		base:     newBase("instagram", client, policy, logger),
		settings: settings,
	}, nil
}

// Publish creates a media container for the image and publishes it.
func (p *Instagram) Publish(ctx context.Context, content Content) Result {
	start := time.Now()
	id, err := p.publish(ctx, content)
	return p.finish(start, id, err)
}

func (p *Instagram) publish(ctx context.Context, content Content) (string, error) {
	if p.settings.MediaBaseURL == "" {
		return "", errors.New("no public media base url configured for instagram")
	}
	if content.MediaPath == "" {
		return "", errors.New("instagram requires an image")
	}
	imageURL := strings.TrimRight(p.settings.MediaBaseURL, "/") + "/" + url.PathEscape(filepath.Base(content.MediaPath))

	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("caption", content.Caption)
	if content.AltText != "" {
		form.Set("alt_text", content.AltText)
	}
	form.Set("access_token", p.settings.AccessToken)

	var container graphIDResp
	if err := p.postForm(ctx, p.endpoint("media"), form, &container); err != nil {
		return "", fmt.Errorf("create media container: %w", err)
	}
	if container.ID == "" {
		return "", errors.New("create media container: empty id")
	}
	p.logger.WithField("container_id", container.ID).Debug("instagram container created")

	publish := url.Values{}
	publish.Set("creation_id", container.ID)
	publish.Set("access_token", p.settings.AccessToken)

	var media graphIDResp
	if err := p.postForm(ctx, p.endpoint("media_publish"), publish, &media); err != nil {
		return "", fmt.Errorf("publish media: %w", err)
	}
	if media.ID == "" {
		return "", errors.New("publish media: empty id")
	}
	return media.ID, nil
}

func (p *Instagram) endpoint(edge string) string {
	return p.settings.GraphURL + "/" + url.PathEscape(p.settings.UserID) + "/" + edge
}
