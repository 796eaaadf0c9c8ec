package sharing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ProviderError carries the error text reported by a provider.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// ErrUnsupported is returned for content a provider cannot publish.
var ErrUnsupported = errors.New("unsupported content for this provider")

// Client is the HTTP client shared by the provider adapters. Each provider
// gets its own circuit breaker; 5xx responses and transport failures count
// against it, 4xx responses do not.
type Client struct {
	http     *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient builds a Client with the given per-request timeout.
func NewClient(timeout time.Duration, log *zap.Logger) *Client {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    20,
		IdleConnTimeout: 90 * time.Second,
	}
	c := &Client{
		http:     &http.Client{Transport: tr, Timeout: timeout},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, name := range []string{ProviderFacebook, ProviderInstagram, ProviderLinkedIn} {
		c.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}
	return c
}

// HTTPClient exposes the underlying client for the OAuth2 token exchange.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends req through the provider's breaker and reads the whole body.
func (c *Client) do(provider string, req *http.Request) (*response, error) {
	out, err := c.breakers[provider].Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		r := &response{status: resp.StatusCode, header: resp.Header, body: body}
		if resp.StatusCode >= 500 {
			return r, &ProviderError{Provider: provider, Status: resp.StatusCode, Message: errorText(body, resp.Status)}
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ProviderError{Provider: provider, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable, try again later"}
	}
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, &ProviderError{Provider: provider, Message: err.Error()}
	}
	return out.(*response), nil
}

func (c *Client) postForm(ctx context.Context, provider, endpoint string, form url.Values) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(provider, req)
}

func (c *Client) get(ctx context.Context, provider, endpoint string, query url.Values, header http.Header) (*response, error) {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return c.do(provider, req)
}

func (c *Client) sendJSON(ctx context.Context, provider, method, endpoint string, payload interface{}, header http.Header) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(provider, req)
}

// errorText extracts a provider's error message from a JSON body, falling
// back to the raw body or fallback.
func errorText(body []byte, fallback string) string {
	var graph struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &graph) == nil {
		switch {
		case graph.Error.Message != "":
			return graph.Error.Message
		case graph.Message != "":
			return graph.Message
		case graph.ErrorDescription != "":
			return graph.ErrorDescription
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > 300 {
			text = text[:300]
		}
		return text
	}
	return fallback
}
