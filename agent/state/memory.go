package state

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore is a process-local Store. Each write swaps the stored *User for a fresh copy,
// so readers never observe a record being mutated.
type MemoryStore struct {
	users *xsync.MapOf[string, *User]
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: xsync.NewMapOf[string, *User](),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUser
	}
	u, ok := m.users.Load(id)
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) Create(_ context.Context, userID, phone, name, locale string) (*User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUser
	}
	u := NewUser(id, phone, name, locale, m.now())
	if _, loaded := m.users.LoadOrStore(id, u); loaded {
		return nil, ErrUserExists
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) AppendMedia(_ context.Context, userID string, mediaURL string) error {
	return m.update(userID, func(u *User) {
		u.Media = append(u.Media, mediaURL)
	})
}

func (m *MemoryStore) AppendHistory(_ context.Context, userID string, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return m.update(userID, func(u *User) {
		u.History = append(u.History, msg)
	})
}

func (m *MemoryStore) ReplaceHistory(_ context.Context, userID string, msgs []Message) error {
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return err
		}
	}
	return m.update(userID, func(u *User) {
		u.History = CloneHistory(msgs)
	})
}

func (m *MemoryStore) update(userID string, mutate func(u *User)) error {
	id := strings.TrimSpace(userID)
	if id == "" {
		return ErrInvalidUser
	}

	found := true
	m.users.Compute(id, func(old *User, loaded bool) (*User, bool) {
		if !loaded {
			found = false
			return nil, true
		}
		next := cloneUser(old)
		mutate(next)
		return next, false
	})
	if !found {
		return ErrUserNotFound
	}
	return nil
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	out.History = CloneHistory(u.History)
	out.Media = append([]string(nil), u.Media...)
	return &out
}
