package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"caredocs/pkg/domain"
)

const migrateLockID int64 = 48120551

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&RequestModel{}, &DocumentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serializes schema migrations across replicas using a
// Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveRequest stores or updates a medical request.
func (s *GormStore) SaveRequest(ctx context.Context, req domain.MedicalRequest) error {
	model := requestToModel(req)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"patient_name", "status", "payment_status", "updated_at"}),
	}).Create(&model).Error
}

// GetRequest retrieves a request by ID.
func (s *GormStore) GetRequest(ctx context.Context, id string) (domain.MedicalRequest, bool, error) {
	var model RequestModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.MedicalRequest{}, false, nil
		}
		return domain.MedicalRequest{}, false, err
	}
	return requestFromModel(model), true, nil
}

// SetRequestStatus updates the review status of a request.
func (s *GormStore) SetRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	return s.db.WithContext(ctx).Model(&RequestModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// SaveDocument inserts a document row. Documents are append-only; an ID
// collision is an error rather than an update.
func (s *GormStore) SaveDocument(ctx context.Context, doc domain.Document) error {
	model, err := documentToModel(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// LatestDocument returns the most-recently-created document for a request.
func (s *GormStore) LatestDocument(ctx context.Context, requestID string) (domain.Document, bool, error) {
	var model DocumentModel
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// HasDocument reports whether any document references the request.
func (s *GormStore) HasDocument(ctx context.Context, requestID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&DocumentModel{}).Where("request_id = ?", requestID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListDocumentsByRequest returns all documents for a request, newest first.
func (s *GormStore) ListDocumentsByRequest(ctx context.Context, requestID string) ([]domain.Document, error) {
	return s.listDocuments(ctx, "request_id = ?", requestID)
}

// ListDocuments returns every document, newest first.
func (s *GormStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return s.listDocuments(ctx)
}

func (s *GormStore) listDocuments(ctx context.Context, conds ...any) ([]domain.Document, error) {
	var models []DocumentModel
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

func requestToModel(r domain.MedicalRequest) RequestModel {
	return RequestModel{
		ID:            r.ID,
		PatientName:   r.PatientName,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func requestFromModel(m RequestModel) domain.MedicalRequest {
	return domain.MedicalRequest{
		ID:            m.ID,
		PatientName:   m.PatientName,
		Status:        domain.RequestStatus(m.Status),
		PaymentStatus: domain.PaymentStatus(m.PaymentStatus),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) (DocumentModel, error) {
	var payload datatypes.JSON
	if len(d.Payload) > 0 {
		raw, err := json.Marshal(d.Payload)
		if err != nil {
			return DocumentModel{}, fmt.Errorf("marshal document payload: %w", err)
		}
		payload = datatypes.JSON(raw)
	}
	return DocumentModel{
		ID:        d.ID,
		RequestID: d.RequestID,
		Type:      string(d.Type),
		Subtype:   string(d.Subtype),
		PDFURL:    d.PDFURL,
		Payload:   payload,
		CreatedAt: d.CreatedAt,
	}, nil
}

func documentFromModel(m DocumentModel) domain.Document {
	var payload map[string]string
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}
	return domain.Document{
		ID:        m.ID,
		RequestID: m.RequestID,
		Type:      domain.DocumentType(m.Type),
		Subtype:   domain.DocumentSubtype(m.Subtype),
		PDFURL:    m.PDFURL,
		Payload:   payload,
		CreatedAt: m.CreatedAt,
	}
}
