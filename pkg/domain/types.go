package domain

import "time"

type RequestStatus string

const (
	StatusPending       RequestStatus = "pending"
	StatusNeedsFollowUp RequestStatus = "needs_follow_up"
	StatusApproved      RequestStatus = "approved"
	StatusRejected      RequestStatus = "rejected"
	StatusCancelled     RequestStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type DocumentType string

const (
	TypeCertificate DocumentType = "certificate"
	TypeReferral    DocumentType = "referral"
)

type DocumentSubtype string

const (
	SubtypeWork    DocumentSubtype = "work"
	SubtypeUni     DocumentSubtype = "uni"
	SubtypeCarer   DocumentSubtype = "carer"
	SubtypeBloods  DocumentSubtype = "pathology_bloods"
	SubtypeImaging DocumentSubtype = "pathology_imaging"
)

// FamilyOf maps a subtype to its document family.
// Unknown subtypes return an empty type.
func FamilyOf(sub DocumentSubtype) DocumentType {
	switch sub {
	case SubtypeWork, SubtypeUni, SubtypeCarer:
		return TypeCertificate
	case SubtypeBloods, SubtypeImaging:
		return TypeReferral
	}
	return ""
}

// Subtypes lists every subtype a deployment is expected to configure.
func Subtypes() []DocumentSubtype {
	return []DocumentSubtype{SubtypeWork, SubtypeUni, SubtypeCarer, SubtypeBloods, SubtypeImaging}
}

type MedicalRequest struct {
	ID            string        `json:"id"`
	PatientName   string        `json:"patientName"`
	Status        RequestStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type Document struct {
	ID        string            `json:"id"`
	RequestID string            `json:"requestId"`
	Type      DocumentType      `json:"type"`
	Subtype   DocumentSubtype   `json:"subtype"`
	PDFURL    string            `json:"pdfUrl"`
	Payload   map[string]string `json:"-"`
	CreatedAt time.Time         `json:"createdAt"`
}
