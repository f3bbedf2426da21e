package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

const (
	defaultTikTokAPIURL = "https://open.tiktokapis.com"
	tiktokTitleLimit    = 2200
)

// TikTokSettings configures the TikTok Content Posting API client.
type TikTokSettings struct {
	APIURL       string
	AccessToken  string
	PrivacyLevel string
}

type tiktokPostInfo struct {
	Title        string `json:"title"`
	PrivacyLevel string `json:"privacy_level"`
}

type tiktokSourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int    `json:"video_size"`
	ChunkSize       int    `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

type tiktokInitReq struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
}

type tiktokInitResp struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// TikTok uploads a video file in a single chunk.
type TikTok struct {
	base
	settings TikTokSettings
}

func NewTikTok(settings TikTokSettings, client *http.Client, policy retry.Policy, logger logging.Logger) (*TikTok, error) {
	if settings.AccessToken == "" {
		return nil, errors.New("tiktok requires an access token")
	}
	if settings.APIURL == "" {
		settings.APIURL = defaultTikTokAPIURL
	}
	if settings.PrivacyLevel == "" {
		settings.PrivacyLevel = "SELF_ONLY"
	}
	settings.APIURL = strings.TrimRight(settings.APIURL, "/")
	return &TikTok{
		base:     newBase("tiktok", client, policy, logger),
		settings: settings,
	}, nil
}

// Publish sends content.MediaPath as a video with content.Caption as title.
func (p *TikTok) Publish(ctx context.Context, content Content) Result {
	start := time.Now()
	id, err := p.publish(ctx, content)
	return p.finish(start, id, err)
}

func (p *TikTok) publish(ctx context.Context, content Content) (string, error) {
	video, err := os.ReadFile(content.MediaPath)
	if err != nil {
		return "", fmt.Errorf("read video: %w", err)
	}
	if len(video) == 0 {
		return "", errors.New("video file is empty")
	}

	title := content.Caption
	if utf8.RuneCountInString(title) > tiktokTitleLimit {
		title = string([]rune(title)[:tiktokTitleLimit])
	}

	initReq := tiktokInitReq{
		PostInfo: tiktokPostInfo{Title: title, PrivacyLevel: p.settings.PrivacyLevel},
		SourceInfo: tiktokSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       len(video),
			ChunkSize:       len(video),
			TotalChunkCount: 1,
		},
	}
	var resp tiktokInitResp
	endpoint := p.settings.APIURL + "/v2/post/publish/video/init/"
	if err := p.postJSON(ctx, endpoint, bearer(p.settings.AccessToken), initReq, &resp); err != nil {
		return "", fmt.Errorf("init upload: %w", err)
	}
	if resp.Error.Code != "" && resp.Error.Code != "ok" {
		return "", fmt.Errorf("init upload: %s %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Data.UploadURL == "" {
		return "", errors.New("init upload: no upload url")
	}

	contentRange := fmt.Sprintf("bytes 0-%d/%d", len(video)-1, len(video))
	err = p.send(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, resp.Data.UploadURL, bytes.NewReader(video))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Content-Range", contentRange)
		return req, nil
	}, nil)
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	return resp.Data.PublishID, nil
}
