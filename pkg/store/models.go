package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type RequestModel struct {
	ID            string    `gorm:"primaryKey"`
	PatientName   string    `gorm:"not null"`
	Status        string    `gorm:"not null;index"`
	PaymentStatus string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (RequestModel) TableName() string { return "requests" }

type DocumentModel struct {
	ID        string         `gorm:"primaryKey"`
	RequestID string         `gorm:"not null;index"`
	Type      string         `gorm:"not null"`
	Subtype   string         `gorm:"not null"`
	PDFURL    string         `gorm:"column:pdf_url;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (DocumentModel) TableName() string { return "documents" }
