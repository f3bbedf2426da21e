package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

const (
	defaultTwitterAPIURL    = "https://api.x.com"
	defaultTwitterUploadURL = "https://api.x.com/2/media/upload"
)

// TwitterSettings configures the Twitter/X API client. BearerToken must be a
// user-context token allowed to post.
type TwitterSettings struct {
	APIURL      string
	UploadURL   string
	BearerToken string
}

type mediaUploadResp struct {
	// v1.1 shape
	MediaIDString string `json:"media_id_string"`
	// v2 shape
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetReq struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetResp struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Twitter uploads the image and posts a tweet referencing it.
type Twitter struct {
	base
	settings TwitterSettings
}

func NewTwitter(settings TwitterSettings, client *http.Client, policy retry.Policy, logger logging.Logger) (*Twitter, error) {
	if settings.BearerToken == "" {
		return nil, errors.New("twitter requires a bearer token")
	}
	if settings.APIURL == "" {
		settings.APIURL = defaultTwitterAPIURL
	}
	if settings.UploadURL == "" {
		settings.UploadURL = defaultTwitterUploadURL
	}
	settings.APIURL = strings.TrimRight(settings.APIURL, "/")
	return &Twitter{
		base:     newBase("twitter", client, policy, logger),
		settings: settings,
	}, nil
}

// Publish posts content.Caption, attaching content.MediaPath when set.
func (p *Twitter) Publish(ctx context.Context, content Content) Result {
	start := time.Now()
	id, err := p.publish(ctx, content)
	return p.finish(start, id, err)
}

func (p *Twitter) publish(ctx context.Context, content Content) (string, error) {
	if strings.TrimSpace(content.Caption) == "" {
		return "", errors.New("tweet text is empty")
	}
	req := tweetReq{Text: content.Caption}

	if content.MediaPath != "" {
		mediaID, err := p.upload(ctx, content.MediaPath)
		if err != nil {
			return "", fmt.Errorf("upload media: %w", err)
		}
		req.Media = &tweetMedia{MediaIDs: []string{mediaID}}
	}

	var resp tweetResp
	if err := p.postJSON(ctx, p.settings.APIURL+"/2/tweets", bearer(p.settings.BearerToken), req, &resp); err != nil {
		return "", fmt.Errorf("create tweet: %w", err)
	}
	if resp.Data.ID == "" {
		return "", errors.New("create tweet: empty id")
	}
	return resp.Data.ID, nil
}

func (p *Twitter) upload(ctx context.Context, path string) (string, error) {
	var resp mediaUploadResp
	fields := map[string]string{"media_category": "tweet_image"}
	if err := p.uploadFile(ctx, p.settings.UploadURL, "media", path, fields, bearer(p.settings.BearerToken), &resp); err != nil {
		return "", err
	}
	if resp.Data.ID != "" {
		return resp.Data.ID, nil
	}
	if resp.MediaIDString != "" {
		return resp.MediaIDString, nil
	}
	return "", errors.New("empty media id")
}
