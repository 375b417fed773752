package store

import (
	"context"
	"testing"
	"time"

	"caredocs/pkg/domain"
)

func TestMemoryStoreLatestDocumentOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	docs := []domain.Document{
		{ID: "d1", RequestID: "req-1", PDFURL: "u1", CreatedAt: base},
		{ID: "d3", RequestID: "req-1", PDFURL: "u3", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "d2", RequestID: "req-1", PDFURL: "u2", CreatedAt: base.Add(time.Minute)},
	}
	for _, d := range docs {
		if err := s.SaveDocument(ctx, d); err != nil {
			t.Fatalf("save document: %v", err)
		}
	}

	latest, found, err := s.LatestDocument(ctx, "req-1")
	if err != nil || !found {
		t.Fatalf("latest: found=%v err=%v", found, err)
	}
	if latest.ID != "d3" {
		t.Fatalf("latest = %s, want d3", latest.ID)
	}

	listed, err := s.ListDocumentsByRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "d3" || listed[2].ID != "d1" {
		t.Fatalf("unexpected order: %+v", listed)
	}
}

func TestMemoryStoreLatestDocumentMissing(t *testing.T) {
	s := NewMemoryStore()
	_, found, err := s.LatestDocument(context.Background(), "req-none")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if found {
		t.Fatalf("expected no document")
	}
}

func TestMemoryStoreSetRequestStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.SaveRequest(ctx, domain.MedicalRequest{ID: "req-1", Status: domain.StatusPending, PaymentStatus: domain.PaymentPaid}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetRequestStatus(ctx, "req-1", domain.StatusApproved); err != nil {
		t.Fatalf("set status: %v", err)
	}
	req, found, err := s.GetRequest(ctx, "req-1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if req.Status != domain.StatusApproved {
		t.Fatalf("status = %s", req.Status)
	}
	if err := s.SetRequestStatus(ctx, "missing", domain.StatusApproved); err == nil {
		t.Fatalf("expected error for unknown request")
	}
}
