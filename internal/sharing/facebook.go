package sharing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const (
	ProviderFacebook  = "Facebook"
	ProviderInstagram = "Instagram"
	ProviderLinkedIn  = "LinkedIn"

	facebookVersion  = "v18.0"
	instagramVersion = "v19.0"
)

// Facebook publishes to a Facebook page through the Graph API.
type Facebook struct {
	client  *Client
	baseURL string
}

func NewFacebook(client *Client, graphBaseURL string) *Facebook {
	return &Facebook{client: client, baseURL: strings.TrimRight(graphBaseURL, "/") + "/" + facebookVersion}
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func decodeGraphID(provider string, r *response) (string, error) {
	if r.status >= 300 {
		return "", &ProviderError{Provider: provider, Status: r.status, Message: errorText(r.body, http.StatusText(r.status))}
	}
	var out graphID
	if err := json.Unmarshal(r.body, &out); err != nil || (out.ID == "" && out.PostID == "") {
		return "", &ProviderError{Provider: provider, Status: r.status, Message: errorText(r.body, "unexpected response")}
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	return out.ID, nil
}

// PublishText posts message to the page feed.
func (f *Facebook) PublishText(ctx context.Context, token, pageID, message string) (string, error) {
	form := url.Values{"message": {message}, "access_token": {token}}
	r, err := f.client.postForm(ctx, ProviderFacebook, f.baseURL+"/"+url.PathEscape(pageID)+"/feed", form)
	if err != nil {
		return "", err
	}
	return decodeGraphID(ProviderFacebook, r)
}

// PublishPhoto uploads an image with caption to the page.
func (f *Facebook) PublishPhoto(ctx context.Context, token, pageID, caption, filename string, media io.Reader) (string, error) {
	return f.upload(ctx, token, pageID, "photos", "message", caption, filename, media)
}

// PublishVideo uploads a video with description to the page.
func (f *Facebook) PublishVideo(ctx context.Context, token, pageID, description, filename string, media io.Reader) (string, error) {
	return f.upload(ctx, token, pageID, "videos", "description", description, filename, media)
}

func (f *Facebook) upload(ctx context.Context, token, pageID, edge, textField, text, filename string, media io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("access_token", token)
	if text != "" {
		_ = w.WriteField(textField, text)
	}
	part, err := w.CreateFormFile("source", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, media); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+url.PathEscape(pageID)+"/"+edge, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	r, err := f.client.do(ProviderFacebook, req)
	if err != nil {
		return "", err
	}
	return decodeGraphID(ProviderFacebook, r)
}
