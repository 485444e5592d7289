package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/pinpress/internal/apperr"
	"github.com/starford/pinpress/internal/storage"
)

// HistoryKey is the slot holding the full record list.
const HistoryKey = "publishHistory"

// Store implements list/get/create/update/delete/clear over one KV slot.
//
// Every operation reads the whole list, changes it in memory and writes the
// whole list back. A Store serializes its own cycles, so one Store per slot
// is the single writer. Two Stores (or processes) sharing a slot are not
// coordinated and the last full-list write wins.
type Store struct {
	kv    storage.KV
	key   string
	now   func() time.Time
	newID func() (string, error)

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the UUIDv7 id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns a Store backed by kv.
func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		key:   HistoryKey,
		now:   time.Now,
		newID: newUUIDv7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newUUIDv7 combines a millisecond timestamp with 74 random bits.
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// List returns all records, newest first. The result is empty, never nil,
// when the slot was never written.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the record with id, or nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(list, id); i >= 0 {
		r := list[i]
		return &r, nil
	}
	return nil, nil
}

// Create stores a new record at the front of the list.
func (s *Store) Create(ctx context.Context, in NewRecord) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("records: generate id: %w", err)
	}
	if indexOf(list, id) >= 0 {
		return nil, fmt.Errorf("records: %w: generated id %s already in use", apperr.ErrConflict, id)
	}

	now := s.timestamp()
	rec := Record{
		ID:        id,
		Title:     in.Title,
		Content:   in.Content,
		CID:       in.CID,
		URL:       in.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	list = append([]Record{rec}, list...)
	if err := s.save(ctx, list); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update merges patch into the record with id and bumps UpdatedAt. It returns
// nil without writing when id is unknown. The record keeps its position.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Record, error) {
	return s.UpdateIf(ctx, id, "", patch)
}

// UpdateIf is Update guarded by etag. A non-empty etag must equal the stored
// record's ETag at write time, otherwise nothing is written and the error
// wraps apperr.ErrConflict.
func (s *Store) UpdateIf(ctx context.Context, id, etag string, patch Patch) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return nil, nil
	}

	rec := list[i]
	if etag != "" && etag != rec.ETag() {
		return nil, fmt.Errorf("records: %w: %s changed since etag %s", apperr.ErrConflict, id, etag)
	}
	patch.apply(&rec)
	now := s.timestamp()
	if !now.After(rec.UpdatedAt) {
		now = rec.UpdatedAt.Add(time.Millisecond)
	}
	rec.UpdatedAt = now
	list[i] = rec

	if err := s.save(ctx, list); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record with id and reports whether one was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return false, nil
	}
	list = append(list[:i], list[i+1:]...)
	if err := s.save(ctx, list); err != nil {
		return false, err
	}
	return true, nil
}

// Clear replaces the stored list with an empty one.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, []Record{})
}

// timestamp returns now at the millisecond precision the slot stores.
func (s *Store) timestamp() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *Store) load(ctx context.Context) ([]Record, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("records: %w: read %s: %w", apperr.ErrStorage, s.key, err)
	}
	if !ok || len(raw) == 0 {
		return []Record{}, nil
	}
	var list []Record
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("records: %w: decode %s: %w", apperr.ErrStorage, s.key, err)
	}
	if list == nil {
		list = []Record{}
	}
	return list, nil
}

func (s *Store) save(ctx context.Context, list []Record) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("records: %w: encode: %w", apperr.ErrStorage, err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("records: %w: write %s: %w", apperr.ErrStorage, s.key, err)
	}
	return nil
}

func indexOf(list []Record, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
