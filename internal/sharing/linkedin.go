package sharing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const linkedInScopes = "w_member_social openid profile"

// LinkedIn implements the member OAuth flow and UGC publishing.
type LinkedIn struct {
	client      *Client
	apiBaseURL  string
	authBaseURL string
	redirectURL string
}

func NewLinkedIn(client *Client, apiBaseURL, authBaseURL, redirectURL string) *LinkedIn {
	return &LinkedIn{
		client:      client,
		apiBaseURL:  strings.TrimRight(apiBaseURL, "/"),
		authBaseURL: strings.TrimRight(authBaseURL, "/"),
		redirectURL: redirectURL,
	}
}

// OAuthConfig builds the authorization-code config for a user's LinkedIn app.
func (l *LinkedIn) OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  l.redirectURL,
		Scopes:       strings.Fields(linkedInScopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:   l.authBaseURL + "/oauth/v2/authorization",
			TokenURL:  l.authBaseURL + "/oauth/v2/accessToken",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Exchange trades an authorization code for a member token.
func (l *LinkedIn) Exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, l.client.HTTPClient())
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		msg := err.Error()
		if re, ok := err.(*oauth2.RetrieveError); ok {
			msg = errorText(re.Body, re.Error())
		}
		return nil, &ProviderError{Provider: ProviderLinkedIn, Message: msg}
	}
	return tok, nil
}

func (l *LinkedIn) authHeader(token string) http.Header {
	return http.Header{
		"Authorization":             {"Bearer " + token},
		"X-Restli-Protocol-Version": {"2.0.0"},
	}
}

// MemberURN resolves the person URN of the token owner.
func (l *LinkedIn) MemberURN(ctx context.Context, token string) (string, error) {
	r, err := l.client.get(ctx, ProviderLinkedIn, l.apiBaseURL+"/v2/userinfo", nil, l.authHeader(token))
	if err != nil {
		return "", err
	}
	if r.status != http.StatusOK {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: r.status, Message: errorText(r.body, "could not load profile")}
	}
	var info struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(r.body, &info); err != nil || info.Sub == "" {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: r.status, Message: "profile has no member id"}
	}
	return "urn:li:person:" + info.Sub, nil
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string  `json:"status"`
	Description ugcText `json:"description"`
	Media       string  `json:"media"`
	Title       ugcText `json:"title"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

func newUGCPost(urn string, content ugcShareContent) ugcPost {
	return ugcPost{
		Author:          urn,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{"com.linkedin.ugc.ShareContent": content},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
}

// PublishText shares a text post.
func (l *LinkedIn) PublishText(ctx context.Context, token, urn, text string) (string, error) {
	return l.publish(ctx, token, newUGCPost(urn, ugcShareContent{
		ShareCommentary:    ugcText{Text: text},
		ShareMediaCategory: "NONE",
	}))
}

// PublishImage registers an upload, sends the image bytes and shares a post
// referencing the asset.
func (l *LinkedIn) PublishImage(ctx context.Context, token, urn, text, contentType string, image io.Reader) (string, error) {
	register := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   urn,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}
	r, err := l.client.sendJSON(ctx, ProviderLinkedIn, http.MethodPost, l.apiBaseURL+"/v2/assets?action=registerUpload", register, l.authHeader(token))
	if err != nil {
		return "", err
	}
	if r.status != http.StatusOK {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: r.status, Message: errorText(r.body, "image upload registration failed")}
	}
	var reg struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.Unmarshal(r.body, &reg); err != nil {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: r.status, Message: "unexpected upload registration response"}
	}
	uploadURL := reg.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"].UploadURL
	if uploadURL == "" || reg.Value.Asset == "" {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: r.status, Message: "upload registration returned no upload URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, image)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	up, err := l.client.do(ProviderLinkedIn, req)
	if err != nil {
		return "", err
	}
	if up.status >= 300 {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: up.status, Message: errorText(up.body, "image upload failed")}
	}

	return l.publish(ctx, token, newUGCPost(urn, ugcShareContent{
		ShareCommentary:    ugcText{Text: text},
		ShareMediaCategory: "IMAGE",
		Media: []ugcMedia{{
			Status:      "READY",
			Description: ugcText{Text: text},
			Media:       reg.Value.Asset,
			Title:       ugcText{Text: "Shared from Socio"},
		}},
	}))
}

func (l *LinkedIn) publish(ctx context.Context, token string, post ugcPost) (string, error) {
	r, err := l.client.sendJSON(ctx, ProviderLinkedIn, http.MethodPost, l.apiBaseURL+"/v2/ugcPosts", post, l.authHeader(token))
	if err != nil {
		return "", err
	}
	if r.status != http.StatusCreated {
		return "", &ProviderError{Provider: ProviderLinkedIn, Status: r.status, Message: errorText(r.body, http.StatusText(r.status))}
	}
	if id := r.header.Get("X-Restli-Id"); id != "" {
		return id, nil
	}
	var out struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(r.body, &out)
	return out.ID, nil
}
