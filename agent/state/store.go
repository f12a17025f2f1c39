package state

import (
	"bytes"
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
	defaultStoreKeyPrefix = "wa:user:"
	maxResponseSizeBytes  = 2 << 20
)

// Store is the conversation persistence contract used by the dispatch controller.
//
// AppendHistory is an atomic single-entry append. ReplaceHistory overwrites the whole
// list and is not atomic with respect to concurrent writers: last writer wins.
type Store interface {
	Get(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, userID, phone, name, locale string) (*User, error)
	AppendMedia(ctx context.Context, userID string, mediaURL string) error
	AppendHistory(ctx context.Context, userID string, msg Message) error
	ReplaceHistory(ctx context.Context, userID string, msgs []Message) error
}

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *UpstashRedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// UpstashRedisStore keeps users in Upstash Redis via REST.
// Layout per user: a JSON profile string, a history list and a media list.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	now        func() time.Time
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"wa:user:"`
}

type userProfile struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Locale    string    `json:"locale"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		now:       time.Now,
	}
	if p := strings.TrimSpace(cfg.KeyPrefix); p != "" {
		store.keyPrefix = p
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store, nil
}

func (s *UpstashRedisStore) Get(ctx context.Context, userID string) (*User, error) {
	keys, err := s.keysFor(userID)
	if err != nil {
		return nil, err
	}

	results, err := s.pipeline(ctx, [][]any{
		{"GET", keys.profile},
		{"LRANGE", keys.history, "0", "-1"},
		{"LRANGE", keys.media, "0", "-1"},
	})
	if err != nil {
		return nil, err
	}

	profileRaw := bytes.TrimSpace(results[0].Result)
	if len(profileRaw) == 0 || bytes.Equal(profileRaw, []byte("null")) {
		return nil, ErrUserNotFound
	}

	var encoded string
	if err := json.Unmarshal(profileRaw, &encoded); err != nil {
		return nil, fmt.Errorf("decode user payload: %w", err)
	}
	var profile userProfile
	if err := json.Unmarshal([]byte(encoded), &profile); err != nil {
		return nil, fmt.Errorf("unmarshal user profile: %w", err)
	}

	var rawHistory []string
	if err := decodeList(results[1].Result, &rawHistory); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	history := make([]Message, 0, len(rawHistory))
	for i, raw := range rawHistory {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal history entry %d: %w", i, err)
		}
		history = append(history, msg)
	}

	media := []string{}
	if err := decodeList(results[2].Result, &media); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}

	user := &User{
		ID:        profile.ID,
		Phone:     profile.Phone,
		Name:      profile.Name,
		Locale:    profile.Locale,
		History:   history,
		Media:     media,
		CreatedAt: profile.CreatedAt,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user loaded from store: %w", err)
	}
	return user, nil
}

func (s *UpstashRedisStore) Create(ctx context.Context, userID, phone, name, locale string) (*User, error) {
	keys, err := s.keysFor(userID)
	if err != nil {
		return nil, err
	}

	user := NewUser(userID, phone, name, locale, s.now())
	payload, err := json.Marshal(userProfile{
		ID:        user.ID,
		Phone:     user.Phone,
		Name:      user.Name,
		Locale:    user.Locale,
		CreatedAt: user.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal user profile: %w", err)
	}

	resp, err := s.exec(ctx, []any{"SET", keys.profile, string(payload), "NX"})
	if err != nil {
		return nil, err
	}
	if result := bytes.TrimSpace(resp.Result); len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrUserExists
	}
	return user, nil
}

func (s *UpstashRedisStore) AppendMedia(ctx context.Context, userID string, mediaURL string) error {
	keys, err := s.keysFor(userID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"RPUSH", keys.media, mediaURL})
	return err
}

func (s *UpstashRedisStore) AppendHistory(ctx context.Context, userID string, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	keys, err := s.keysFor(userID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = s.exec(ctx, []any{"RPUSH", keys.history, string(payload)})
	return err
}

// ReplaceHistory issues DEL then RPUSH in one pipeline. Pipelines are not transactions,
// so a concurrent append between the two commands can be lost.
func (s *UpstashRedisStore) ReplaceHistory(ctx context.Context, userID string, msgs []Message) error {
	keys, err := s.keysFor(userID)
	if err != nil {
		return err
	}

	commands := [][]any{{"DEL", keys.history}}
	if len(msgs) > 0 {
		push := make([]any, 0, len(msgs)+2)
		push = append(push, "RPUSH", keys.history)
		for _, m := range msgs {
			if err := m.Validate(); err != nil {
				return err
			}
			payload, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			push = append(push, string(payload))
		}
		commands = append(commands, push)
	}

	_, err = s.pipeline(ctx, commands)
	return err
}

type userKeys struct {
	profile string
	history string
	media   string
}

func (s *UpstashRedisStore) keysFor(userID string) (userKeys, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return userKeys{}, ErrInvalidUser
	}
	prefix := strings.TrimSpace(s.keyPrefix)
	if prefix == "" {
		prefix = defaultStoreKeyPrefix
	}
	base := prefix + id
	return userKeys{
		profile: base,
		history: base + ":history",
		media:   base + ":media",
	}, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	raw, err := s.post(ctx, s.baseURL, command)
	if err != nil {
		return nil, err
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func (s *UpstashRedisStore) pipeline(ctx context.Context, commands [][]any) ([]redisRESTResponse, error) {
	if len(commands) == 0 {
		return nil, errors.New("empty redis pipeline")
	}

	raw, err := s.post(ctx, s.baseURL+"/pipeline", commands)
	if err != nil {
		return nil, err
	}

	var parsed []redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis pipeline response: %w", err)
	}
	if len(parsed) != len(commands) {
		return nil, fmt.Errorf("redis pipeline returned %d results for %d commands", len(parsed), len(commands))
	}
	for i, r := range parsed {
		if r.Error != "" {
			return nil, fmt.Errorf("redis pipeline command %d: %s", i, r.Error)
		}
	}
	return parsed, nil
}

func (s *UpstashRedisStore) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if strings.TrimSpace(s.baseURL) == "" {
		return nil, errors.New("empty redis url")
	}
	if strings.TrimSpace(s.token) == "" {
		return nil, errors.New("empty redis token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func decodeList(raw json.RawMessage, out *[]string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*out = []string{}
		return nil
	}
	return json.Unmarshal(trimmed, out)
}
