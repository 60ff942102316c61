// Package session persists paused conversation state between requests.
//
// Each pending step is serialized to JSON under the conversation
// identifier: the conversation's registered type name plus its exported
// fields, the continuation (handler tokens or a pattern/handler branch
// table), the original question, the additional parameters and a save
// timestamp. Drivers that never leave the process (SerializesCallbacks()
// == false) bypass serialization; their pending state is held in-process
// with the same TTL semantics.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"botkit/internal/conversation"
	"botkit/internal/domain"
)

// DefaultCacheTime is the pending-state TTL in minutes when neither the
// config nor the conversation type overrides it.
const DefaultCacheTime = 30

var (
	// ErrCallbackNotSerializable is returned when a pending step holds a
	// raw function but the active driver requires cross-process state.
	ErrCallbackNotSerializable = errors.New("conversation callback is not serializable; register it as a handler token")

	// ErrConversationNotRegistered is returned when a conversation type
	// was not registered with conversation.Register.
	ErrConversationNotRegistered = errors.New("conversation type is not registered")
)

// Store reads and writes pending conversation state through a pluggable
// key-value backend.
type Store struct {
	storage domain.Storage
	ttl     time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	live map[string]liveEntry
}

type liveEntry struct {
	pending   *domain.Pending
	expiresAt time.Time
}

type record struct {
	Conversation string          `json:"conversation"`
	State        json.RawMessage `json:"state,omitempty"`
	Question     json.RawMessage `json:"question,omitempty"`
	Additional   map[string]any  `json:"additional_parameters,omitempty"`
	Next         domain.Next     `json:"next"`
	Time         int64           `json:"time"`
}

// NewStore wraps a storage backend. cacheMinutes <= 0 keeps the default.
func NewStore(storage domain.Storage, cacheMinutes int, logger *slog.Logger) *Store {
	if cacheMinutes <= 0 {
		cacheMinutes = DefaultCacheTime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		ttl:     time.Duration(cacheMinutes) * time.Minute,
		logger:  logger,
		live:    make(map[string]liveEntry),
	}
}

// Save persists the pending step under the identifier, overwriting any
// earlier step for the same identifier. serialize is false for drivers
// that keep callbacks in-process.
func (s *Store) Save(id string, p *domain.Pending, serialize bool) error {
	p.Time = time.Now().UnixNano()
	ttl := s.ttl
	if minutes := p.Conversation.CacheTime(); minutes > 0 {
		ttl = time.Duration(minutes) * time.Minute
	}

	if !serialize {
		s.mu.Lock()
		s.live[id] = liveEntry{pending: p, expiresAt: time.Now().Add(ttl)}
		s.mu.Unlock()
		return nil
	}

	name, ok := conversation.NameOf(p.Conversation)
	if !ok {
		return fmt.Errorf("%w: %T", ErrConversationNotRegistered, p.Conversation)
	}
	if err := checkSerializable(p.Next); err != nil {
		return err
	}

	state, err := json.Marshal(p.Conversation)
	if err != nil {
		return fmt.Errorf("serialize conversation state: %w", err)
	}
	var question json.RawMessage
	if p.Question != nil {
		if question, err = json.Marshal(p.Question); err != nil {
			return fmt.Errorf("serialize question: %w", err)
		}
	}

	data, err := json.Marshal(record{
		Conversation: name,
		State:        state,
		Question:     question,
		Additional:   p.Additional,
		Next:         p.Next,
		Time:         p.Time,
	})
	if err != nil {
		return fmt.Errorf("serialize pending state: %w", err)
	}
	return s.storage.Put(id, data, ttl)
}

// Has reports whether pending state exists under either identifier.
func (s *Store) Has(id, originatedID string) bool {
	s.mu.Lock()
	for _, key := range []string{id, originatedID} {
		if e, ok := s.live[key]; ok {
			if time.Now().Before(e.expiresAt) {
				s.mu.Unlock()
				return true
			}
			delete(s.live, key)
		}
	}
	s.mu.Unlock()
	return s.storage.Has(id) || s.storage.Has(originatedID)
}

// Load returns the pending state for the direct identifier, falling back
// to the originated identifier. The conversation object is reconstructed
// but not yet bound to a bot.
func (s *Store) Load(id, originatedID string) (*domain.Pending, bool) {
	s.mu.Lock()
	for _, key := range []string{id, originatedID} {
		if e, ok := s.live[key]; ok {
			if time.Now().Before(e.expiresAt) {
				s.mu.Unlock()
				return e.pending, true
			}
			delete(s.live, key)
		}
	}
	s.mu.Unlock()

	data, ok := s.storage.Get(id)
	if !ok {
		if data, ok = s.storage.Get(originatedID); !ok {
			return nil, false
		}
	}
	p, err := s.decode(data)
	if err != nil {
		s.logger.Warn("discarding malformed stored conversation", "key", id, "err", err)
		return nil, false
	}
	return p, true
}

// Delete removes pending state under both identifiers.
func (s *Store) Delete(id, originatedID string) {
	s.mu.Lock()
	delete(s.live, id)
	delete(s.live, originatedID)
	s.mu.Unlock()
	s.storage.Pull(id)
	s.storage.Pull(originatedID)
}

// DeleteIfUnchanged removes pending state only while its stored save time
// still equals loadedTime. This guards against deleting a conversation
// that re-armed itself with a fresh Ask during the same dispatch. It is a
// best-effort lost-update check, not a lock; true atomicity would need a
// compare-and-delete in the backend.
func (s *Store) DeleteIfUnchanged(id, originatedID string, loadedTime int64) {
	current, ok := s.Load(id, originatedID)
	if !ok {
		return
	}
	if current.Time != loadedTime {
		return
	}
	s.Delete(id, originatedID)
}

func (s *Store) decode(data []byte) (*domain.Pending, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	conv, ok := conversation.New(rec.Conversation)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConversationNotRegistered, rec.Conversation)
	}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, conv); err != nil {
			return nil, fmt.Errorf("conversation state: %w", err)
		}
	}
	var question any
	if len(rec.Question) > 0 {
		if err := json.Unmarshal(rec.Question, &question); err != nil {
			return nil, fmt.Errorf("question: %w", err)
		}
	}
	return &domain.Pending{
		Conversation: conv,
		Question:     question,
		Next:         rec.Next,
		Additional:   rec.Additional,
		Time:         rec.Time,
	}, nil
}

func checkSerializable(next domain.Next) error {
	if next.Fn != nil && next.Handler == "" {
		return ErrCallbackNotSerializable
	}
	for _, step := range next.Steps {
		if step.Fn != nil && step.Handler == "" {
			return ErrCallbackNotSerializable
		}
	}
	return nil
}
