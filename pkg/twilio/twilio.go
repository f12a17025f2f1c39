package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIURL        = "https://api.twilio.com"
	maxResponseSizeBytes = 1 << 20
	maxMediaSizeBytes    = 25 << 20
)

type Config struct {
	AccountSID     string        `envconfig:"ACCOUNT_SID" split_words:"true" required:"true"`
	AuthToken      string        `envconfig:"AUTH_TOKEN" split_words:"true" required:"true"`
	WhatsAppNumber string        `envconfig:"WHATSAPP_NUMBER" split_words:"true" default:"whatsapp:+14155238886"`
	APIURL         string        `envconfig:"API_URL" split_words:"true" default:"https://api.twilio.com"`
	Timeout        time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Client talks to the Twilio REST API for outbound WhatsApp messages and inbound media.
type Client struct {
	apiURL     string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	sid := strings.TrimSpace(cfg.AccountSID)
	if sid == "" {
		return nil, errors.New("twilio account sid is required")
	}
	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		return nil, errors.New("twilio auth token is required")
	}

	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("invalid twilio api url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		apiURL:     apiURL,
		accountSID: sid,
		authToken:  token,
		from:       strings.TrimSpace(cfg.WhatsAppNumber),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type sendResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

// SendMessage delivers body to a WhatsApp address ("whatsapp:+15551234567").
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("twilio: destination is required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.apiURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read twilio response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var parsed sendResponse
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Message != "" {
			return fmt.Errorf("twilio http status=%d: %s", resp.StatusCode, parsed.Message)
		}
		return fmt.Errorf("twilio http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}

// FetchMedia downloads an inbound media item; Twilio media URLs require account credentials.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	if _, err := url.ParseRequestURI(strings.TrimSpace(mediaURL)); err != nil {
		return nil, "", fmt.Errorf("invalid media url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(mediaURL), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("media http status=%d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSizeBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	return raw, resp.Header.Get("Content-Type"), nil
}
