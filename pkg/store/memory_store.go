package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"caredocs/pkg/domain"
)

// MemoryStore keeps requests and documents in-process. Used by tests and
// local development without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]domain.MedicalRequest
	docs     map[string][]domain.Document // request ID -> documents
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]domain.MedicalRequest),
		docs:     make(map[string][]domain.Document),
	}
}

// SaveRequest stores or replaces a request record.
func (m *MemoryStore) SaveRequest(_ context.Context, req domain.MedicalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	return nil
}

// GetRequest retrieves a request by ID.
func (m *MemoryStore) GetRequest(_ context.Context, id string) (domain.MedicalRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	return req, ok, nil
}

// SetRequestStatus updates the review status of a request.
func (m *MemoryStore) SetRequestStatus(_ context.Context, id string, status domain.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	m.requests[id] = req
	return nil
}

// SaveDocument appends a document row.
func (m *MemoryStore) SaveDocument(_ context.Context, doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.RequestID] = append(m.docs[doc.RequestID], doc)
	return nil
}

// LatestDocument returns the most-recently-created document for a request.
func (m *MemoryStore) LatestDocument(_ context.Context, requestID string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.docs[requestID]
	if len(docs) == 0 {
		return domain.Document{}, false, nil
	}
	latest := docs[0]
	for _, d := range docs[1:] {
		if d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest, true, nil
}

// HasDocument reports whether any document references the request.
func (m *MemoryStore) HasDocument(_ context.Context, requestID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[requestID]) > 0, nil
}

// ListDocumentsByRequest returns documents for a request, newest first.
func (m *MemoryStore) ListDocumentsByRequest(_ context.Context, requestID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, len(m.docs[requestID]))
	copy(res, m.docs[requestID])
	sortDocsNewestFirst(res)
	return res, nil
}

// ListDocuments returns every document, newest first.
func (m *MemoryStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Document
	for _, docs := range m.docs {
		res = append(res, docs...)
	}
	sortDocsNewestFirst(res)
	return res, nil
}

func sortDocsNewestFirst(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}
