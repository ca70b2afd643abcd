package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kindatcart/cartcheck/internal/models"
)

// Cloud API defaults.
const (
	DefaultGraphBaseURL    = "https://graph.facebook.com"
	DefaultGraphAPIVersion = "v18.0"
	DefaultHTTPTimeout     = 30 * time.Second
	// maxMediaBytes caps media downloads; cart photos are a few MB at most.
	maxMediaBytes = 32 << 20
)

// CloudAPIOpts holds configuration options for the Cloud API backend.
type CloudAPIOpts struct {
	Token      string
	PhoneID    string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
}

// CloudAPIOption defines a configuration option for the Cloud API backend.
type CloudAPIOption func(*CloudAPIOpts)

// WithToken sets the Cloud API bearer token.
func WithToken(token string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.Token = token }
}

// WithPhoneID sets the WhatsApp business phone number ID.
func WithPhoneID(id string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.PhoneID = id }
}

// WithBaseURL overrides the Graph API base URL (used in tests).
func WithBaseURL(url string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.BaseURL = url }
}

// WithAPIVersion overrides the Graph API version.
func WithAPIVersion(version string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.APIVersion = version }
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(client *http.Client) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.HTTPClient = client }
}

// CloudAPIService implements Service using the WhatsApp Cloud API. Inbound
// messages arrive through the webhook endpoint, so its Responses channel
// never carries traffic.
type CloudAPIService struct {
	token      string
	phoneID    string
	baseURL    string
	apiVersion string
	client     *http.Client
	responses  chan models.IncomingMessage
	stopOnce   sync.Once
}

// NewCloudAPIService creates a Cloud API backend from the given options.
func NewCloudAPIService(opts ...CloudAPIOption) (*CloudAPIService, error) {
	var cfg CloudAPIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("WhatsApp token must be provided")
	}
	if cfg.PhoneID == "" {
		return nil, fmt.Errorf("WhatsApp phone number ID must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultGraphAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &CloudAPIService{
		token:      cfg.Token,
		phoneID:    cfg.PhoneID,
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		client:     cfg.HTTPClient,
		responses:  make(chan models.IncomingMessage),
	}, nil
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// SendMessage sends a plain-text message via the Cloud API messages endpoint.
func (s *CloudAPIService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                canonicalTo,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.apiVersion, s.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("CloudAPIService send request failed", "error", err, "to", canonicalTo)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("CloudAPIService send rejected", "status", resp.StatusCode, "to", canonicalTo, "body", string(respBody))
		return fmt.Errorf("message send to %s failed with status %d", canonicalTo, resp.StatusCode)
	}
	slog.Debug("CloudAPIService message sent", "to", canonicalTo, "body_length", len(body))
	return nil
}

// DownloadMedia resolves a media ID to its bytes: first look up the media URL
// through the Graph API, then fetch the media itself with the same token.
func (s *CloudAPIService) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if mediaID == "" {
		return nil, "", fmt.Errorf("media ID cannot be empty")
	}

	lookupURL := fmt.Sprintf("%s/%s/%s", s.baseURL, s.apiVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup for %s failed: %w", mediaID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media lookup for %s failed with status %d", mediaID, resp.StatusCode)
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode media lookup response: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("media lookup for %s returned no URL", mediaID)
	}

	mediaReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media download request: %w", err)
	}
	mediaReq.Header.Set("Authorization", "Bearer "+s.token)

	mediaResp, err := s.client.Do(mediaReq)
	if err != nil {
		return nil, "", fmt.Errorf("media download for %s failed: %w", mediaID, err)
	}
	defer mediaResp.Body.Close()
	if mediaResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download for %s failed with status %d", mediaID, mediaResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(mediaResp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body for %s: %w", mediaID, err)
	}

	mediaType := mediaResp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = meta.MimeType
	}
	slog.Debug("CloudAPIService media downloaded", "media_id", mediaID, "bytes", len(data), "media_type", mediaType)
	return data, mediaType, nil
}

// Start is a no-op: Cloud API inbound traffic arrives via the webhook.
func (s *CloudAPIService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the (unused) responses channel. Safe to call more than once.
func (s *CloudAPIService) Stop() error {
	s.stopOnce.Do(func() { close(s.responses) })
	return nil
}

// Responses returns the inbound channel; it never carries traffic for this backend.
func (s *CloudAPIService) Responses() <-chan models.IncomingMessage {
	return s.responses
}
