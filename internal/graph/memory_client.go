package graph

import (
	"context"
	"sync"
)

// Query is a statement executed against a MemoryClient
type Query struct {
	Cypher string
	Params map[string]any
	Write  bool
}

// MemoryClient records queries and replays queued read results. Used in tests.
type MemoryClient struct {
	mu      sync.Mutex
	queries []Query
	reads   []Result
	err     error
}

// NewMemoryClient creates an empty in-memory client
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// FailWith makes every later query return err
func (m *MemoryClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// QueueRead appends a result for the next ExecuteRead
func (m *MemoryClient) QueueRead(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, res)
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return m.record(cypher, params, true)
}

func (m *MemoryClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return m.record(cypher, params, false)
}

func (m *MemoryClient) record(cypher string, params map[string]any, write bool) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Result{}, m.err
	}

	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	m.queries = append(m.queries, Query{Cypher: cypher, Params: copied, Write: write})

	if write || len(m.reads) == 0 {
		return Result{}, nil
	}
	res := m.reads[0]
	m.reads = m.reads[1:]
	return res, nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// Queries returns a snapshot of executed queries
func (m *MemoryClient) Queries() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.queries...)
}
