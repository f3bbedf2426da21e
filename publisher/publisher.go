// Package publisher pushes finished posts to social platforms. Publish never
// returns an error: every failure is folded into a Result.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

// Content describes what to publish.
type Content struct {
	MediaPath string
	Caption   string
	AltText   string
}

// Result records one publish attempt.
type Result struct {
	Platform   string        `json:"platform"`
	OK         bool          `json:"ok"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message,omitempty"`
	PostID     string        `json:"post_id,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Publisher publishes content to one platform.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, content Content) Result
}

// APIError carries a non-2xx platform response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// base holds the HTTP plumbing shared by every platform client.
type base struct {
	platform string
	client   *http.Client
	policy   retry.Policy
	logger   logging.Logger
}

func newBase(platform string, client *http.Client, policy retry.Policy, logger logging.Logger) base {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return base{platform: platform, client: client, policy: policy, logger: logger}
}

func (b base) Platform() string { return b.platform }

// finish converts the outcome of a publish into a Result and logs it.
func (b base) finish(start time.Time, postID string, err error) Result {
	res := Result{
		Platform: b.platform,
		OK:       err == nil,
		PostID:   postID,
		Duration: time.Since(start),
	}
	log := b.logger.WithField("platform", b.platform)
	if err != nil {
		res.Message = err.Error()
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			res.StatusCode = apiErr.StatusCode
		}
		log.WithError(err).Warn("publish failed")
		return res
	}
	res.Message = "published"
	log.WithField("post_id", postID).Info("publish succeeded")
	return res
}

// send executes the request built by newReq under the retry policy and
// decodes a 2xx JSON body into out. Transient failures are retried, so newReq
// must describe an idempotent step such as a media upload.
func (b base) send(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error), out any) error {
	return b.sendIf(ctx, retry.ShouldRetryHTTP, newReq, out)
}

func (b base) sendIf(ctx context.Context, handle func(*http.Response, error) bool, newReq func(ctx context.Context) (*http.Request, error), out any) error {
	resp, err := retry.DoHTTPIf(ctx, b.policy, b.client, newReq, handle)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.platform, err)
	}
	return nil
}

// postJSON and postForm create things remotely (posts, containers, upload
// sessions). They retry only under retry.ShouldRetryCreate so a 5xx that
// follows a successful create never publishes twice.
func (b base) postJSON(ctx context.Context, endpoint string, headers http.Header, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.sendIf(ctx, retry.ShouldRetryCreate, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		copyHeaders(req, headers)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		return req, nil
	}, out)
}

func (b base) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	encoded := form.Encode()
	return b.sendIf(ctx, retry.ShouldRetryCreate, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// uploadFile posts filePath as multipart field along with extra form fields.
func (b base) uploadFile(ctx context.Context, endpoint, field, filePath string, fields map[string]string, headers http.Header, out any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	payload := body.Bytes()
	contentType := writer.FormDataContentType()

	return b.send(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		copyHeaders(req, headers)
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, out)
}

func copyHeaders(req *http.Request, headers http.Header) {
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

const maxErrorRunes = 200

// errorMessage pulls a readable message out of the common platform error shapes.
func errorMessage(body []byte) string {
	var shapes struct {
		Error json.RawMessage `json:"error"`
		// Twitter v2
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if json.Unmarshal(body, &shapes) == nil {
		if len(shapes.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
				Code    any    `json:"code"`
			}
			if json.Unmarshal(shapes.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var plain string
			if json.Unmarshal(shapes.Error, &plain) == nil && plain != "" {
				return plain
			}
		}
		if shapes.Detail != "" {
			return shapes.Detail
		}
		if shapes.Title != "" {
			return shapes.Title
		}
	}
	msg := strings.TrimSpace(string(body))
	if r := []rune(msg); len(r) > maxErrorRunes {
		msg = string(r[:maxErrorRunes])
	}
	return msg
}
