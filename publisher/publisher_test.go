package publisher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poof_palace_engine/logging"
	"poof_palace_engine/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInstagram_Publish(t *testing.T) {
	var container, publish map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		switch r.URL.Path {
		case "/v18.0/1789/media":
			container = form
			_, _ = w.Write([]byte(`{"id":"container-1"}`))
		case "/v18.0/1789/media_publish":
			publish = form
			_, _ = w.Write([]byte(`{"id":"media-1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	ig, err := NewInstagram(InstagramSettings{
		GraphURL:     srv.URL + "/v18.0/",
		UserID:       "1789",
		AccessToken:  "ig-token",
		MediaBaseURL: "https://cdn.example.com/images/",
	}, srv.Client(), fastPolicy(1), logging.Discard())
	require.NoError(t, err)

	res := ig.Publish(context.Background(), Content{
		MediaPath: "output/images/pp_20250101_080000.png",
		Caption:   "Bow, peasants. #LilPoof",
		AltText:   "A fluffy cat asleep in a sunbeam",
	})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "instagram", res.Platform)
	assert.Equal(t, "media-1", res.PostID)

	assert.Equal(t, "https://cdn.example.com/images/pp_20250101_080000.png", container["image_url"])
	assert.Equal(t, "Bow, peasants. #LilPoof", container["caption"])
	assert.Equal(t, "A fluffy cat asleep in a sunbeam", container["alt_text"])
	assert.Equal(t, "ig-token", container["access_token"])
	assert.Equal(t, "container-1", publish["creation_id"])
}

func TestInstagram_GraphErrorIsCaptured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	ig, err := NewInstagram(InstagramSettings{GraphURL: srv.URL, UserID: "1", AccessToken: "bad", MediaBaseURL: "https://cdn"}, nil, fastPolicy(1), nil)
	require.NoError(t, err)

	res := ig.Publish(context.Background(), Content{MediaPath: "a.png", Caption: "c"})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, res.Message, "Invalid OAuth access token.")
}

func TestInstagram_NoMediaBaseURL(t *testing.T) {
	ig, err := NewInstagram(InstagramSettings{UserID: "1", AccessToken: "t"}, nil, fastPolicy(1), nil)
	require.NoError(t, err)

	res := ig.Publish(context.Background(), Content{MediaPath: "a.png", Caption: "c"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "public media base url")
}

func TestTwitter_PublishWithMedia(t *testing.T) {
	var tweet tweetReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tw-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/2/media/upload":
			file, header, err := r.FormFile("media")
			if assert.NoError(t, err) {
				data, _ := io.ReadAll(file)
				assert.Equal(t, "PNGDATA", string(data))
				assert.Equal(t, "pp.png", header.Filename)
			}
			assert.Equal(t, "tweet_image", r.FormValue("media_category"))
			_, _ = w.Write([]byte(`{"data":{"id":"m-42"}}`))
		case "/2/tweets":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&tweet))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"id":"t-1","text":"hi"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tw, err := NewTwitter(TwitterSettings{
		APIURL:      srv.URL,
		UploadURL:   srv.URL + "/2/media/upload",
		BearerToken: "tw-token",
	}, srv.Client(), fastPolicy(1), nil)
	require.NoError(t, err)

	res := tw.Publish(context.Background(), Content{MediaPath: writeTemp(t, "pp.png", "PNGDATA"), Caption: "Royal nap."})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "t-1", res.PostID)
	assert.Equal(t, "Royal nap.", tweet.Text)
	require.NotNil(t, tweet.Media)
	assert.Equal(t, []string{"m-42"}, tweet.Media.MediaIDs)
}

func TestTwitter_RetriesRateLimitThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`))
	}))
	defer srv.Close()

	tw, err := NewTwitter(TwitterSettings{APIURL: srv.URL, BearerToken: "t"}, srv.Client(), fastPolicy(3), nil)
	require.NoError(t, err)

	res := tw.Publish(context.Background(), Content{Caption: "text only"})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Contains(t, res.Message, "Too Many Requests")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestTikTok_Publish(t *testing.T) {
	var initReq tiktokInitReq
	var uploaded []byte
	var contentRange string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v2/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tt-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&initReq))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":  map[string]string{"publish_id": "v_pub_1", "upload_url": srv.URL + "/upload"},
			"error": map[string]string{"code": "ok", "message": ""},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		contentRange = r.Header.Get("Content-Range")
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	tt, err := NewTikTok(TikTokSettings{APIURL: srv.URL, AccessToken: "tt-token"}, srv.Client(), fastPolicy(1), nil)
	require.NoError(t, err)

	video := writeTemp(t, "placeholder.mp4", "MP4BYTES")
	res := tt.Publish(context.Background(), Content{MediaPath: video, Caption: "Her Majesty dances."})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "v_pub_1", res.PostID)
	assert.Equal(t, "FILE_UPLOAD", initReq.SourceInfo.Source)
	assert.Equal(t, 8, initReq.SourceInfo.VideoSize)
	assert.Equal(t, "SELF_ONLY", initReq.PostInfo.PrivacyLevel)
	assert.Equal(t, "Her Majesty dances.", initReq.PostInfo.Title)
	assert.Equal(t, "bytes 0-7/8", contentRange)
	assert.Equal(t, "MP4BYTES", string(uploaded))
}

func TestTikTok_MissingVideo(t *testing.T) {
	tt, err := NewTikTok(TikTokSettings{AccessToken: "t"}, nil, fastPolicy(1), nil)
	require.NoError(t, err)

	res := tt.Publish(context.Background(), Content{MediaPath: filepath.Join(t.TempDir(), "missing.mp4"), Caption: "c"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "read video")
}

func TestTikTok_InitErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{},"error":{"code":"spam_risk_too_many_posts","message":"daily cap"}}`))
	}))
	defer srv.Close()

	tt, err := NewTikTok(TikTokSettings{APIURL: srv.URL, AccessToken: "t"}, srv.Client(), fastPolicy(1), nil)
	require.NoError(t, err)

	res := tt.Publish(context.Background(), Content{MediaPath: writeTemp(t, "v.mp4", "x"), Caption: "c"})
	assert.False(t, res.OK)
	assert.True(t, strings.Contains(res.Message, "spam_risk_too_many_posts"))
}

func TestConstructorsRequireCredentials(t *testing.T) {
	_, err := NewInstagram(InstagramSettings{UserID: "1"}, nil, fastPolicy(1), nil)
	assert.Error(t, err)
	_, err = NewTwitter(TwitterSettings{}, nil, fastPolicy(1), nil)
	assert.Error(t, err)
	_, err = NewTikTok(TikTokSettings{}, nil, fastPolicy(1), nil)
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	d := Disabled{Name: "tiktok", Reason: "missing secret: TIKTOK_ACCESS_TOKEN"}
	res := d.Publish(context.Background(), Content{})
	assert.Equal(t, "tiktok", d.Platform())
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "TIKTOK_ACCESS_TOKEN")
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":{"message":"boom"}}`)))
	assert.Equal(t, "flat", errorMessage([]byte(`{"error":"flat"}`)))
	assert.Equal(t, "nope", errorMessage([]byte(`{"detail":"nope"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text")))

	long := strings.Repeat("喵", 250)
	msg := errorMessage([]byte(long))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, 200, utf8.RuneCountInString(msg))
	assert.Equal(t, strings.Repeat("喵", 200), msg)

	short := strings.Repeat("é", 150)
	assert.Equal(t, short, errorMessage([]byte(short)))
}

func TestInstagram_CreateNotRepeatedOnServerError(t *testing.T) {
	var creates, publishes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1/media":
			atomic.AddInt32(&creates, 1)
			_, _ = w.Write([]byte(`{"id":"container-1"}`))
		case "/1/media_publish":
			atomic.AddInt32(&publishes, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"Service temporarily unavailable"}}`))
		}
	}))
	defer srv.Close()

	ig, err := NewInstagram(InstagramSettings{GraphURL: srv.URL, UserID: "1", AccessToken: "t", MediaBaseURL: "https://cdn"}, srv.Client(), fastPolicy(3), nil)
	require.NoError(t, err)

	res := ig.Publish(context.Background(), Content{MediaPath: "a.png", Caption: "c"})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&creates))
	assert.Equal(t, int32(1), atomic.LoadInt32(&publishes))
}

func TestTwitter_TweetNotRepeatedButUploadRetried(t *testing.T) {
	var uploads, tweets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/media/upload":
			if atomic.AddInt32(&uploads, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"id":"m-1"}}`))
		case "/2/tweets":
			atomic.AddInt32(&tweets, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	tw, err := NewTwitter(TwitterSettings{
		APIURL:      srv.URL,
		UploadURL:   srv.URL + "/2/media/upload",
		BearerToken: "t",
	}, srv.Client(), fastPolicy(3), nil)
	require.NoError(t, err)

	res := tw.Publish(context.Background(), Content{MediaPath: writeTemp(t, "pp.png", "PNG"), Caption: "Royal nap."})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&uploads))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tweets))
}
