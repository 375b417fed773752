package store

import (
	"context"

	"caredocs/pkg/domain"
)

// Store defines persistence operations for medical requests and their documents.
// Requests are created by the intake flow and mutated by the doctor-review
// workflow; documents are append-only.
type Store interface {
	// requests
	SaveRequest(ctx context.Context, req domain.MedicalRequest) error
	GetRequest(ctx context.Context, id string) (domain.MedicalRequest, bool, error)
	SetRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error

	// documents
	SaveDocument(ctx context.Context, doc domain.Document) error
	LatestDocument(ctx context.Context, requestID string) (domain.Document, bool, error)
	HasDocument(ctx context.Context, requestID string) (bool, error)
	ListDocumentsByRequest(ctx context.Context, requestID string) ([]domain.Document, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
}
