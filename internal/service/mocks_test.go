package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/models"
	"github.com/portfolio-ledger/internal/types"
)

// Mock repositories for testing

type mockAccountStore struct {
	mu      sync.Mutex
	records map[solana.PublicKey]*account.Record
	clock   func() time.Time
}

func newMockAccountStore(clock func() time.Time) *mockAccountStore {
	return &mockAccountStore{records: make(map[solana.PublicKey]*account.Record), clock: clock}
}

func (m *mockAccountStore) Create(ctx context.Context, record *account.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.Address]; ok {
		return types.NewServiceError(types.CodeAccountAlreadyInitialized, "portfolio already initialized: %s", record.Address)
	}
	record.CreatedAt = m.clock()
	record.UpdatedAt = record.CreatedAt
	m.records[record.Address] = copyRecord(record)
	return nil
}

func (m *mockAccountStore) Get(ctx context.Context, address solana.PublicKey) (*account.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[address]
	if !ok {
		return nil, types.NewServiceError(types.CodePortfolioNotFound, "portfolio not found: %s", address)
	}
	return copyRecord(r), nil
}

func (m *mockAccountStore) Update(ctx context.Context, address solana.PublicKey, fn func(*account.Portfolio) error) (*account.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[address]
	if !ok {
		return nil, types.NewServiceError(types.CodePortfolioNotFound, "portfolio not found: %s", address)
	}

	next := copyRecord(r)
	if err := fn(next.Portfolio); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.clock()
	if !next.UpdatedAt.After(r.UpdatedAt) {
		next.UpdatedAt = r.UpdatedAt.Add(time.Microsecond)
	}
	m.records[address] = next
	return copyRecord(next), nil
}

func copyRecord(r *account.Record) *account.Record {
	c := *r
	c.Portfolio = r.Portfolio.Clone()
	return &c
}

type cacheEntry struct {
	version int64
	data    []byte
}

type mockViewCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	gets    int
	hits    int
	failAll bool
}

func newMockViewCache() *mockViewCache {
	return &mockViewCache{entries: make(map[string]cacheEntry)}
}

var errCacheDown = errors.New("cache unavailable")

func (m *mockViewCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failAll {
		return false, errCacheDown
	}
	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	m.hits++
	return true, json.Unmarshal(entry.data, dest)
}

func (m *mockViewCache) Set(ctx context.Context, key string, version int64, value interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return false, errCacheDown
	}
	if cur, ok := m.entries[key]; ok && cur.version >= version {
		return false, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	m.entries[key] = cacheEntry{version: version, data: data}
	return true, nil
}

func (m *mockViewCache) Invalidate(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errCacheDown
	}
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *mockViewCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

type mockReplayGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockReplayGuard) Claim(ctx context.Context, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[signature] {
		return false, nil
	}
	m.seen[signature] = true
	return true, nil
}

type mockActivityLog struct {
	mu     sync.Mutex
	events []*models.ActivityEvent
	fail   bool
}

func (m *mockActivityLog) Insert(ctx context.Context, events ...*models.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("clickhouse unavailable")
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockActivityLog) ListByPortfolio(ctx context.Context, portfolio string, limit int) ([]*models.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ActivityEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].Portfolio == portfolio {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// pausingStore holds the next Get after it has read the row, until released
type pausingStore struct {
	*mockAccountStore
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausingStore(inner *mockAccountStore) *pausingStore {
	return &pausingStore{mockAccountStore: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingStore) Get(ctx context.Context, address solana.PublicKey) (*account.Record, error) {
	record, err := p.mockAccountStore.Get(ctx, address)
	p.once.Do(func() {
		close(p.loaded)
		<-p.release
	})
	return record, err
}
