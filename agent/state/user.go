package state

import (
	"errors"
	"strings"
	"time"
)

// User is the durable per-contact record: profile, ordered history and received media.
type User struct {
	// Identity
	ID     string `json:"id"`
	Phone  string `json:"phone"`
	Name   string `json:"name"`
	Locale string `json:"locale"`

	History []Message `json:"message_history"` // insertion order is significant
	Media   []string  `json:"media"`

	CreatedAt time.Time `json:"created_at"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidUser  = errors.New("user id is empty")
	ErrInvalidRole  = errors.New("message role is invalid")
)

func NewUser(id, phone, name, locale string, now time.Time) *User {
	return &User{
		ID:        strings.TrimSpace(id),
		Phone:     strings.TrimSpace(phone),
		Name:      strings.TrimSpace(name),
		Locale:    strings.TrimSpace(locale),
		History:   []Message{},
		Media:     []string{},
		CreatedAt: now.UTC(),
	}
}

func (u *User) Validate() error {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return ErrInvalidUser
	}
	for _, m := range u.History {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return ErrInvalidRole
	}
}

// CloneHistory returns an independent copy so callers never alias stored history.
func CloneHistory(history []Message) []Message {
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// SeedHistory copies history and, when it is empty, starts it with the system instruction.
func SeedHistory(history []Message, systemPrompt string) []Message {
	if len(history) == 0 {
		return []Message{SystemMessage(systemPrompt)}
	}
	return CloneHistory(history)
}
