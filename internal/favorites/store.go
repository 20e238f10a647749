package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/i474232898/travel-buddy/internal/store"
)

// DefaultKey is the slot the list is persisted under.
const DefaultKey = "@favorites"

// KeyValue is a single-slot persistence backend. Get returns store.ErrNotFound
// when nothing has been written under key.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store is a durable, order-preserving, duplicate-free list of destination
// names. Names are compared verbatim (case-sensitive, untrimmed).
//
// All operations hold one mutex for the whole read-modify-write cycle, so
// concurrent Add and Remove calls on the same Store never lose an update.
// Multiple processes sharing one backend are not coordinated.
type Store struct {
	mu sync.Mutex

	kv     KeyValue
	key    string
	logger *zap.Logger
}

// NewStore creates a Store persisting under key (DefaultKey when empty).
func NewStore(kv KeyValue, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:     kv,
		key:    key,
		logger: logger.With(zap.String("key", key)),
	}
}

// List returns the persisted names in insertion order. A slot that was never
// written yields an empty list and no error. An unreadable or malformed slot
// yields an empty list together with a *StoreIOError; callers that prefer
// availability can render the empty list and ignore the error.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.load(ctx)
	if err != nil {
		err = s.ioError("list", err)
		s.logger.Warn("favorites list unreadable, returning empty list", zap.Error(err))
		return []string{}, err
	}
	return names, nil
}

// Add appends name unless it is already present. Adding a present name
// succeeds without writing.
func (s *Store) Add(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.load(ctx)
	if err != nil {
		err = s.ioError("add", err)
		s.logger.Error("favorites add skipped, existing list unreadable", zap.String("destination", name), zap.Error(err))
		return err
	}

	for _, n := range names {
		if n == name {
			s.logger.Debug("favorite already present", zap.String("destination", name))
			return nil
		}
	}

	if err := s.save(ctx, append(names, name)); err != nil {
		err = s.ioError("add", err)
		s.logger.Error("favorites add failed", zap.String("destination", name), zap.Error(err))
		return err
	}

	s.logger.Info("favorite added", zap.String("destination", name))
	return nil
}

// Remove drops every entry equal to name. The list is written back even
// when nothing matched.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.load(ctx)
	if err != nil {
		err = s.ioError("remove", err)
		s.logger.Error("favorites remove skipped, existing list unreadable", zap.String("destination", name), zap.Error(err))
		return err
	}

	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}

	if err := s.save(ctx, kept); err != nil {
		err = s.ioError("remove", err)
		s.logger.Error("favorites remove failed", zap.String("destination", name), zap.Error(err))
		return err
	}

	s.logger.Info("favorite removed",
		zap.String("destination", name),
		zap.Int("removed", len(names)-len(kept)))
	return nil
}

// load must be called with mu held. An absent slot is an empty list.
func (s *Store) load(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// save must be called with mu held.
func (s *Store) save(ctx context.Context, names []string) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, raw)
}

func (s *Store) ioError(op string, err error) *StoreIOError {
	return &StoreIOError{Op: op, Key: s.key, Err: err}
}
