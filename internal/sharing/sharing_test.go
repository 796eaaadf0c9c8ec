package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return NewClient(5*time.Second, zap.NewNop())
}

func TestFacebookPublishText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/page-1/feed", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello world", r.PostForm.Get("message"))
		assert.Equal(t, "tok", r.PostForm.Get("access_token"))
		w.Write([]byte(`{"id":"page-1_42"}`))
	}))
	defer srv.Close()

	fb := NewFacebook(newTestClient(), srv.URL)
	id, err := fb.PublishText(context.Background(), "tok", "page-1", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "page-1_42", id)
}

func TestFacebookPublishPhotoSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/page-1/photos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a caption", r.FormValue("message"))
		f, hdr, err := r.FormFile("source")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.jpg", hdr.Filename)
		assert.Equal(t, "jpegbytes", string(data))
		w.Write([]byte(`{"id":"photo-1","post_id":"page-1_7"}`))
	}))
	defer srv.Close()

	fb := NewFacebook(newTestClient(), srv.URL)
	id, err := fb.PublishPhoto(context.Background(), "tok", "page-1", "a caption", "photo.jpg", strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "page-1_7", id)
}

func TestFacebookSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	_, err := NewFacebook(newTestClient(), srv.URL).PublishText(context.Background(), "bad", "page-1", "hi")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Equal(t, "Facebook error: Invalid OAuth access token.", pe.Error())
}

func TestBreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fb := NewFacebook(newTestClient(), srv.URL)
	for i := 0; i < 5; i++ {
		_, err := fb.PublishText(context.Background(), "tok", "p", "hi")
		require.Error(t, err)
	}
	_, err := fb.PublishText(context.Background(), "tok", "p", "hi")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusServiceUnavailable, pe.Status)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestInstagramVideoWaitsForProcessing(t *testing.T) {
	var polls int32
	var published int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v19.0/ig-1/media":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "REELS", r.PostForm.Get("media_type"))
			assert.Equal(t, "https://cdn.example.com/v.mp4", r.PostForm.Get("video_url"))
			w.Write([]byte(`{"id":"container-9"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v19.0/container-9":
			assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
			if atomic.AddInt32(&polls, 1) < 3 {
				w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
				return
			}
			w.Write([]byte(`{"status_code":"FINISHED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v19.0/ig-1/media_publish":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "container-9", r.PostForm.Get("creation_id"))
			atomic.StoreInt32(&published, 1)
			w.Write([]byte(`{"id":"media-77"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ig := NewInstagram(newTestClient(), srv.URL)
	ig.PollInterval = 5 * time.Millisecond
	ig.PollTimeout = time.Second

	id, err := ig.Publish(context.Background(), "tok", "ig-1", Media{Video: true, URL: "https://cdn.example.com/v.mp4", Caption: "clip"})
	require.NoError(t, err)
	assert.Equal(t, "media-77", id)
	assert.Equal(t, int32(1), atomic.LoadInt32(&published))
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
}

func TestInstagramPublishesOnceAfterPollTimeout(t *testing.T) {
	var publishes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/ig-1/media":
			w.Write([]byte(`{"id":"c1"}`))
		case "/v19.0/c1":
			w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
		case "/v19.0/ig-1/media_publish":
			atomic.AddInt32(&publishes, 1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"Media ID is not available"}}`))
		}
	}))
	defer srv.Close()

	ig := NewInstagram(newTestClient(), srv.URL)
	ig.PollInterval = 2 * time.Millisecond
	ig.PollTimeout = 10 * time.Millisecond

	_, err := ig.Publish(context.Background(), "tok", "ig-1", Media{Video: true, URL: "https://x/v.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Media ID is not available")
	assert.Equal(t, int32(1), atomic.LoadInt32(&publishes))
}

func TestInstagramProcessingErrorStopsPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/ig-1/media":
			w.Write([]byte(`{"id":"c1"}`))
		case "/v19.0/c1":
			w.Write([]byte(`{"status_code":"ERROR"}`))
		default:
			t.Errorf("publish must not be attempted")
		}
	}))
	defer srv.Close()

	ig := NewInstagram(newTestClient(), srv.URL)
	ig.PollInterval = time.Millisecond
	_, err := ig.Publish(context.Background(), "tok", "ig-1", Media{Video: true, URL: "https://x/v.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media processing failed")
}

func TestLinkedInPublishText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ugcPosts", r.URL.Path)
		assert.Equal(t, "Bearer li-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var body ugcPost
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:person:abc", body.Author)
		content := body.SpecificContent["com.linkedin.ugc.ShareContent"]
		assert.Equal(t, "NONE", content.ShareMediaCategory)
		assert.Equal(t, "status update", content.ShareCommentary.Text)

		w.Header().Set("X-Restli-Id", "urn:li:share:1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	li := NewLinkedIn(newTestClient(), srv.URL, srv.URL, "http://localhost/cb")
	id, err := li.PublishText(context.Background(), "li-token", "urn:li:person:abc", "status update")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", id)
}

func TestLinkedInPublishImage(t *testing.T) {
	var uploaded atomic.Value
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/assets":
			assert.Equal(t, "registerUpload", r.URL.Query().Get("action"))
			w.Write([]byte(`{"value":{"asset":"urn:li:digitalmediaAsset:A1","uploadMechanism":{"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"` + srv.URL + `/upload/A1"}}}}`))
		case "/upload/A1":
			assert.Equal(t, http.MethodPut, r.Method)
			data, _ := io.ReadAll(r.Body)
			uploaded.Store(string(data))
			w.WriteHeader(http.StatusCreated)
		case "/v2/ugcPosts":
			var body ugcPost
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			content := body.SpecificContent["com.linkedin.ugc.ShareContent"]
			assert.Equal(t, "IMAGE", content.ShareMediaCategory)
			require.Len(t, content.Media, 1)
			assert.Equal(t, "urn:li:digitalmediaAsset:A1", content.Media[0].Media)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"urn:li:share:2"}`))
		}
	}))
	defer srv.Close()

	li := NewLinkedIn(newTestClient(), srv.URL, srv.URL, "http://localhost/cb")
	id, err := li.PublishImage(context.Background(), "tok", "urn:li:person:abc", "look", "image/png", strings.NewReader("pngdata"))
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:2", id)
	assert.Equal(t, "pngdata", uploaded.Load())
}

func TestLinkedInOAuthExchangeAndMember(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v2/accessToken":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			assert.Equal(t, "cid", r.PostForm.Get("client_id"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"member-token","expires_in":3600}`))
		case "/v2/userinfo":
			assert.Equal(t, "Bearer member-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"sub":"xyz"}`))
		}
	}))
	defer srv.Close()

	li := NewLinkedIn(newTestClient(), srv.URL, srv.URL, "http://localhost/cb")
	cfg := li.OAuthConfig("cid", "secret")
	assert.Contains(t, cfg.AuthCodeURL("state-1"), srv.URL+"/oauth/v2/authorization?")

	tok, err := li.Exchange(context.Background(), cfg, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "member-token", tok.AccessToken)

	urn, err := li.MemberURN(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:xyz", urn)
}
