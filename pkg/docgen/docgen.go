// Package docgen turns a reviewed draft into a patient-facing document URL,
// guaranteed permanent whenever possible.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"caredocs/pkg/domain"
	"caredocs/pkg/render"
	"caredocs/pkg/storage"
	"caredocs/pkg/store"
)

// ErrTemplateNotConfigured means the deployment claims to support a subtype
// but carries no vendor template ID for it. This is a broken deployment, not
// a runtime edge case.
var ErrTemplateNotConfigured = errors.New("no template configured for subtype")

// ErrGenerationFailed wraps vendor render failures. No document exists at
// all in this case, so it propagates instead of degrading.
var ErrGenerationFailed = errors.New("document generation failed")

const dateLayoutAU = "2 January 2006"

// Draft carries the reviewed data a document is rendered from.
type Draft struct {
	PatientName    string
	DateOfBirth    time.Time
	DoctorName     string
	ProviderNumber string
	IssueDate      time.Time
	StartDate      time.Time
	EndDate        time.Time
	Reason         string
	TestsRequested string
	Extra          map[string]string
}

// Clinic is static metadata merged into every rendered document.
type Clinic struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// Result is the outcome of a generation call. Permanent is false on the
// degraded fallback path so callers can react without re-deriving permanence
// from the URL string.
type Result struct {
	URL         string
	Permanent   bool
	StoragePath string
	DocumentID  string
}

// Uploader is the slice of the storage gateway the generator needs.
type Uploader interface {
	UploadFromTemporaryURL(ctx context.Context, temporaryURL, requestID string, docType domain.DocumentType, subtype domain.DocumentSubtype) (storage.Upload, error)
}

// Generator renders documents through the vendor and persists them through
// the storage gateway.
type Generator struct {
	templates map[domain.DocumentSubtype]string
	renderer  render.Renderer
	uploader  Uploader
	store     store.Store
	clinic    Clinic
	now       func() time.Time
}

// Config wires the generator's collaborators. Templates must already be
// validated at startup; Generate still refuses an unconfigured subtype.
type Config struct {
	Templates map[domain.DocumentSubtype]string
	Renderer  render.Renderer
	Uploader  Uploader
	Store     store.Store
	Clinic    Clinic
}

// New constructs the generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("uploader required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if len(cfg.Templates) == 0 {
		return nil, fmt.Errorf("at least one template required")
	}
	return &Generator{
		templates: cfg.Templates,
		renderer:  cfg.Renderer,
		uploader:  cfg.Uploader,
		store:     cfg.Store,
		clinic:    cfg.Clinic,
		now:       time.Now,
	}, nil
}

// Generate renders a document for subtype from draft. With a request ID the
// temporary vendor URL is persisted to our bucket and a document row is
// inserted; on persistence failure the temporary URL is returned as a
// degraded fallback with a warning so operators can backfill. Without a
// request ID the temporary URL is returned directly.
func (g *Generator) Generate(ctx context.Context, draft Draft, subtype domain.DocumentSubtype, requestID string) (Result, error) {
	requestID = strings.TrimSpace(requestID)
	family := domain.FamilyOf(subtype)
	if family == "" {
		return Result{}, fmt.Errorf("%w: unknown subtype %q", ErrTemplateNotConfigured, subtype)
	}
	templateID, ok := g.templates[subtype]
	if !ok || templateID == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrTemplateNotConfigured, subtype)
	}

	payload := g.buildPayload(draft)
	temporaryURL, err := g.renderer.Render(ctx, templateID, payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if requestID == "" {
		// Legacy path: nothing ties this document to a request, so the
		// expiring URL cannot be persisted under a request-scoped key.
		slog.Warn("document generated without request ID, returning temporary URL",
			"subtype", subtype)
		return Result{URL: temporaryURL, Permanent: false}, nil
	}

	up, err := g.uploader.UploadFromTemporaryURL(ctx, temporaryURL, requestID, family, subtype)
	if err != nil {
		// Availability over consistency: hand out a working link now and
		// let the backfill tool restore the permanence guarantee.
		slog.Warn("document persistence failed, falling back to temporary URL",
			"request_id", requestID,
			"subtype", subtype,
			"err", err)
		return Result{URL: temporaryURL, Permanent: false}, nil
	}

	doc := domain.Document{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Type:      family,
		Subtype:   subtype,
		PDFURL:    up.PermanentURL,
		Payload:   payload,
		CreatedAt: g.now().UTC(),
	}
	if err := g.store.SaveDocument(ctx, doc); err != nil {
		// The artifact is already durable and addressable; the row can be
		// recreated by regeneration or backfill.
		slog.Error("document row insert failed after persist",
			"request_id", requestID,
			"storage_path", up.StoragePath,
			"err", err)
	}
	return Result{
		URL:         up.PermanentURL,
		Permanent:   true,
		StoragePath: up.StoragePath,
		DocumentID:  doc.ID,
	}, nil
}

// buildPayload flattens the draft into the vendor's key/value shape with
// AU-formatted dates and clinic metadata merged in.
func (g *Generator) buildPayload(draft Draft) map[string]string {
	payload := map[string]string{
		"patient_name":    draft.PatientName,
		"doctor_name":     draft.DoctorName,
		"provider_number": draft.ProviderNumber,
		"reason":          draft.Reason,
		"clinic_name":     g.clinic.Name,
		"clinic_phone":    g.clinic.Phone,
		"clinic_email":    g.clinic.Email,
		"clinic_address":  g.clinic.Address,
	}
	if draft.TestsRequested != "" {
		payload["tests_requested"] = draft.TestsRequested
	}
	putDate := func(key string, t time.Time) {
		if !t.IsZero() {
			payload[key] = t.Format(dateLayoutAU)
		}
	}
	putDate("date_of_birth", draft.DateOfBirth)
	putDate("issue_date", draft.IssueDate)
	putDate("start_date", draft.StartDate)
	putDate("end_date", draft.EndDate)
	if payload["issue_date"] == "" {
		payload["issue_date"] = g.now().Format(dateLayoutAU)
	}
	for k, v := range draft.Extra {
		payload[k] = v
	}
	return payload
}
