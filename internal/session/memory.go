package session

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRegistry はプロセス内のマップにセッションを保持します。
// プロセスを再起動すると全セッションが失われます。
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRegistry は空の MemoryRegistry を作成します。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]Record)}
}

func (r *MemoryRegistry) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Token] = *record
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, token string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[token]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, token)
	return nil
}

// Len は保持しているセッション数を返します。
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
