package testkit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

// RejectFunc lets a test fail individual operations. Returning ok=false applies the
// operation normally.
type RejectFunc func(index string, op replicate.WriteOperation) (status int, cause string, ok bool)

// MemoryIndex is a replicate.BulkIndexer that applies operations in order to an
// in-memory index with last-write-wins semantics.
type MemoryIndex struct {
	mu     sync.Mutex
	docs   map[string]map[string]json.RawMessage
	calls  int
	err    error
	reject RejectFunc
}

var _ replicate.BulkIndexer = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: map[string]map[string]json.RawMessage{}}
}

// FailWith makes every later Bulk call fail as a transport error.
func (m *MemoryIndex) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemoryIndex) RejectWith(fn RejectFunc) {
	m.mu.Lock()
	m.reject = fn
	m.mu.Unlock()
}

// RejectStatus fails every operation on id with status.
func (m *MemoryIndex) RejectStatus(id string, status int, cause string) {
	m.RejectWith(func(_ string, op replicate.WriteOperation) (int, string, bool) {
		if op.DocID() == id {
			return status, cause, true
		}
		return 0, "", false
	})
}

func (m *MemoryIndex) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Document returns the stored source of id.
func (m *MemoryIndex) Document(index, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[index][id]
	return doc, ok
}

// Snapshot returns a copy of every document in index.
func (m *MemoryIndex) Snapshot(index string) map[string]json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(m.docs[index]))
	for id, doc := range m.docs[index] {
		out[id] = doc
	}
	return out
}

func (m *MemoryIndex) Bulk(ctx context.Context, index string, ops []replicate.WriteOperation) ([]replicate.ItemResult, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	docs := m.docs[index]
	if docs == nil {
		docs = map[string]json.RawMessage{}
		m.docs[index] = docs
	}

	items := make([]replicate.ItemResult, 0, len(ops))
	for _, op := range ops {
		item := replicate.ItemResult{Action: actionName(op.Kind()), Index: index, ID: op.DocID()}
		if m.reject != nil {
			if status, cause, ok := m.reject(index, op); ok {
				item.Status = status
				item.Cause = cause
				items = append(items, item)
				continue
			}
		}

		switch typed := op.(type) {
		case replicate.Upsert:
			body, err := json.Marshal(typed.Document)
			if err != nil {
				item.Status = 400
				item.Cause = err.Error()
				break
			}
			if _, exists := docs[typed.ID]; exists {
				item.Status = 200
			} else {
				item.Status = 201
			}
			docs[typed.ID] = body
		case replicate.Delete:
			if _, exists := docs[typed.ID]; exists {
				delete(docs, typed.ID)
				item.Status = 200
			} else {
				item.Status = 404
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func actionName(kind replicate.OpKind) string {
	if kind == replicate.OpDelete {
		return "delete"
	}
	return "index"
}
