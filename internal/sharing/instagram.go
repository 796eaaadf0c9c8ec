package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	statusFinished = "FINISHED"
	statusError    = "ERROR"
)

// Instagram publishes to an Instagram business account via Graph API
// media containers.
type Instagram struct {
	client       *Client
	baseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func NewInstagram(client *Client, graphBaseURL string) *Instagram {
	return &Instagram{
		client:       client,
		baseURL:      strings.TrimRight(graphBaseURL, "/") + "/" + instagramVersion,
		PollInterval: 2 * time.Second,
		PollTimeout:  180 * time.Second,
	}
}

// Media is an image or video reachable by Instagram at a public URL.
type Media struct {
	Video   bool
	URL     string
	Caption string
}

// Publish creates a media container and publishes it. Video containers are
// polled until processing finishes or the timeout elapses; publishing is
// attempted once either way.
func (ig *Instagram) Publish(ctx context.Context, token, igUserID string, m Media) (string, error) {
	if m.URL == "" {
		return "", ErrUnsupported
	}
	form := url.Values{"caption": {m.Caption}, "access_token": {token}}
	if m.Video {
		form.Set("video_url", m.URL)
		form.Set("media_type", "REELS")
	} else {
		form.Set("image_url", m.URL)
	}
	r, err := ig.client.postForm(ctx, ProviderInstagram, ig.baseURL+"/"+url.PathEscape(igUserID)+"/media", form)
	if err != nil {
		return "", err
	}
	creationID, err := decodeGraphID(ProviderInstagram, r)
	if err != nil {
		return "", err
	}

	if m.Video {
		if err := ig.waitReady(ctx, token, creationID); err != nil {
			return "", err
		}
	}

	r, err = ig.client.postForm(ctx, ProviderInstagram, ig.baseURL+"/"+url.PathEscape(igUserID)+"/media_publish",
		url.Values{"creation_id": {creationID}, "access_token": {token}})
	if err != nil {
		return "", err
	}
	return decodeGraphID(ProviderInstagram, r)
}

var errNotReady = errors.New("container not ready")

// waitReady polls the container status at a fixed interval. It returns nil
// once the container finished or the poll budget ran out, and an error when
// processing failed.
func (ig *Instagram) waitReady(ctx context.Context, token, containerID string) error {
	attempts := uint64(ig.PollTimeout / ig.PollInterval)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(ig.PollInterval), attempts), ctx)

	err := backoff.Retry(func() error {
		r, err := ig.client.get(ctx, ProviderInstagram, ig.baseURL+"/"+url.PathEscape(containerID),
			url.Values{"fields": {"status_code"}, "access_token": {token}}, nil)
		if err != nil {
			return err
		}
		if r.status >= 300 {
			return backoff.Permanent(&ProviderError{Provider: ProviderInstagram, Status: r.status, Message: errorText(r.body, "status check failed")})
		}
		var status struct {
			StatusCode string `json:"status_code"`
		}
		_ = json.Unmarshal(r.body, &status)
		switch status.StatusCode {
		case statusFinished:
			return nil
		case statusError:
			return backoff.Permanent(&ProviderError{Provider: ProviderInstagram, Status: r.status, Message: "media processing failed"})
		default:
			return errNotReady
		}
	}, b)

	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status != 0 {
		return pe
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}
