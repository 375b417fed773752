package docgen

import (
	"context"
	"errors"
	"testing"
	"time"

	"caredocs/pkg/domain"
	"caredocs/pkg/storage"
	"caredocs/pkg/store"
)

type fakeRenderer struct {
	gotTemplate string
	gotData     map[string]string
	url         string
	err         error
}

func (f *fakeRenderer) Render(_ context.Context, templateID string, data map[string]string) (string, error) {
	f.gotTemplate = templateID
	f.gotData = data
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeUploader struct {
	calls int
	err   error
}

func (f *fakeUploader) UploadFromTemporaryURL(_ context.Context, temporaryURL, requestID string, docType domain.DocumentType, subtype domain.DocumentSubtype) (storage.Upload, error) {
	f.calls++
	if f.err != nil {
		return storage.Upload{}, f.err
	}
	return storage.Upload{
		PermanentURL: "https://files.clinic.example/storage/v1/object/public/documents/" + requestID + "/doc.pdf",
		StoragePath:  requestID + "/doc.pdf",
	}, nil
}

func newTestGenerator(t *testing.T, renderer *fakeRenderer, uploader *fakeUploader, dataStore store.Store) *Generator {
	t.Helper()
	gen, err := New(Config{
		Templates: map[domain.DocumentSubtype]string{
			domain.SubtypeWork:   "tmpl-work",
			domain.SubtypeBloods: "tmpl-bloods",
		},
		Renderer: renderer,
		Uploader: uploader,
		Store:    dataStore,
		Clinic: Clinic{
			Name:  "Test Clinic",
			Phone: "+61 2 5550 0000",
		},
	})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return gen
}

func TestGenerateUnconfiguredSubtypeFailsLoudly(t *testing.T) {
	gen := newTestGenerator(t, &fakeRenderer{url: "https://tmp.example/a.pdf"}, &fakeUploader{}, store.NewMemoryStore())
	if _, err := gen.Generate(context.Background(), Draft{}, domain.SubtypeCarer, "req-1"); !errors.Is(err, ErrTemplateNotConfigured) {
		t.Fatalf("expected ErrTemplateNotConfigured, got %v", err)
	}
	if _, err := gen.Generate(context.Background(), Draft{}, domain.DocumentSubtype("made_up"), "req-1"); !errors.Is(err, ErrTemplateNotConfigured) {
		t.Fatalf("expected ErrTemplateNotConfigured for unknown subtype, got %v", err)
	}
}

func TestGenerateRenderFailurePropagates(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("vendor down")}
	uploader := &fakeUploader{}
	gen := newTestGenerator(t, renderer, uploader, store.NewMemoryStore())
	if _, err := gen.Generate(context.Background(), Draft{}, domain.SubtypeWork, "req-1"); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if uploader.calls != 0 {
		t.Fatalf("no upload expected when render fails")
	}
}

func TestGeneratePersistsAndRecordsDocument(t *testing.T) {
	renderer := &fakeRenderer{url: "https://tmp.example/a.pdf"}
	uploader := &fakeUploader{}
	dataStore := store.NewMemoryStore()
	gen := newTestGenerator(t, renderer, uploader, dataStore)

	res, err := gen.Generate(context.Background(), Draft{PatientName: "Jo Chen"}, domain.SubtypeBloods, "req-7")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.Permanent {
		t.Fatalf("expected permanent result")
	}
	if renderer.gotTemplate != "tmpl-bloods" {
		t.Fatalf("template = %q", renderer.gotTemplate)
	}
	doc, found, err := dataStore.LatestDocument(context.Background(), "req-7")
	if err != nil || !found {
		t.Fatalf("document row missing: found=%v err=%v", found, err)
	}
	if doc.Type != domain.TypeReferral || doc.Subtype != domain.SubtypeBloods {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.PDFURL != res.URL {
		t.Fatalf("document URL %q != result URL %q", doc.PDFURL, res.URL)
	}
	if doc.Payload["patient_name"] != "Jo Chen" {
		t.Fatalf("payload snapshot missing patient name")
	}
}

func TestGenerateFallsBackToTemporaryURLOnPersistFailure(t *testing.T) {
	renderer := &fakeRenderer{url: "https://tmp.example/a.pdf"}
	uploader := &fakeUploader{err: errors.New("bucket unavailable")}
	dataStore := store.NewMemoryStore()
	gen := newTestGenerator(t, renderer, uploader, dataStore)

	res, err := gen.Generate(context.Background(), Draft{}, domain.SubtypeWork, "req-2")
	if err != nil {
		t.Fatalf("fallback should not error: %v", err)
	}
	if res.Permanent {
		t.Fatalf("fallback result must be marked non-permanent")
	}
	if res.URL != "https://tmp.example/a.pdf" {
		t.Fatalf("fallback should return the temporary URL, got %q", res.URL)
	}
	if found, _ := dataStore.HasDocument(context.Background(), "req-2"); found {
		t.Fatalf("no document row expected on fallback")
	}
}

func TestGenerateWithoutRequestIDReturnsTemporaryURL(t *testing.T) {
	renderer := &fakeRenderer{url: "https://tmp.example/a.pdf"}
	uploader := &fakeUploader{}
	gen := newTestGenerator(t, renderer, uploader, store.NewMemoryStore())

	res, err := gen.Generate(context.Background(), Draft{}, domain.SubtypeWork, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Permanent || res.URL != "https://tmp.example/a.pdf" {
		t.Fatalf("expected temporary URL result, got %+v", res)
	}
	if uploader.calls != 0 {
		t.Fatalf("no persistence possible without request ID")
	}
}

func TestGenerateBlankRequestIDTakesLegacyPath(t *testing.T) {
	renderer := &fakeRenderer{url: "https://tmp.example/a.pdf"}
	uploader := &fakeUploader{}
	gen := newTestGenerator(t, renderer, uploader, store.NewMemoryStore())

	res, err := gen.Generate(context.Background(), Draft{}, domain.SubtypeWork, "   ")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Permanent || res.URL != "https://tmp.example/a.pdf" {
		t.Fatalf("expected temporary URL result, got %+v", res)
	}
	if uploader.calls != 0 {
		t.Fatalf("whitespace request ID must not reach the uploader")
	}
}

func TestBuildPayloadFormatsAUDatesAndMergesClinic(t *testing.T) {
	renderer := &fakeRenderer{url: "https://tmp.example/a.pdf"}
	gen := newTestGenerator(t, renderer, &fakeUploader{}, store.NewMemoryStore())

	draft := Draft{
		PatientName: "Jo Chen",
		DateOfBirth: time.Date(1990, time.March, 7, 0, 0, 0, 0, time.UTC),
		StartDate:   time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
		Extra:       map[string]string{"notes": "rest"},
	}
	if _, err := gen.Generate(context.Background(), draft, domain.SubtypeWork, "req-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data := renderer.gotData
	if data["date_of_birth"] != "7 March 1990" {
		t.Fatalf("date_of_birth = %q", data["date_of_birth"])
	}
	if data["start_date"] != "29 August 2026" || data["end_date"] != "1 September 2026" {
		t.Fatalf("period dates wrong: %q .. %q", data["start_date"], data["end_date"])
	}
	if data["issue_date"] == "" {
		t.Fatalf("issue_date should default to today")
	}
	if data["clinic_name"] != "Test Clinic" || data["clinic_phone"] != "+61 2 5550 0000" {
		t.Fatalf("clinic metadata not merged: %+v", data)
	}
	if data["notes"] != "rest" {
		t.Fatalf("extra fields not merged")
	}
}
