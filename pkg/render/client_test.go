package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRenderSendsVendorContract(t *testing.T) {
	var got renderRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-KEY")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"download_url": "https://vendor.example/tmp/abc.pdf"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key")
	url, err := c.Render(context.Background(), "tmpl-1", map[string]string{"patient_name": "Jo Chen"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if url != "https://vendor.example/tmp/abc.pdf" {
		t.Fatalf("download url = %q", url)
	}
	if apiKey != "secret-key" {
		t.Fatalf("api key header = %q", apiKey)
	}
	if got.TemplateID != "tmpl-1" || got.ExportType != "json" || got.Expiration != 60 {
		t.Fatalf("unexpected vendor payload: %+v", got)
	}
	if got.Data["patient_name"] != "Jo Chen" {
		t.Fatalf("data not forwarded: %+v", got.Data)
	}
}

func TestRenderSurfacesVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown template"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").Render(context.Background(), "bad", nil)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Message != "unknown template" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestRenderMissingDownloadURLIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").Render(context.Background(), "tmpl-1", nil)
	if err == nil {
		t.Fatalf("expected error for missing download_url")
	}
}
