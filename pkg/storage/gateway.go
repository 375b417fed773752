package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"caredocs/pkg/domain"
)

const (
	// MaxPDFBytes caps uploads at 5 MiB. Enforced before any network call.
	MaxPDFBytes = 5 * 1024 * 1024

	pdfMagic     = "%PDF-"
	cacheControl = "public, max-age=31536000, immutable"
)

// Upload is the result of a successful persist.
type Upload struct {
	PermanentURL string
	StoragePath  string
}

// Gateway persists PDF byte streams to the document bucket and classifies
// URLs as permanent or not. Storage paths always start with the owning
// request ID so the ID can be recovered from a URL later.
type Gateway struct {
	objects    ObjectStore
	httpClient *http.Client
	bucket     string
	publicBase string
	now        func() time.Time
}

// GatewayConfig wires the gateway's collaborators.
type GatewayConfig struct {
	Objects ObjectStore
	// PublicBaseURL is the root under which uploaded objects are publicly
	// resolvable, e.g. https://files.clinic.example/storage/v1/object.
	PublicBaseURL string
	Bucket        string
	// HTTPClient downloads temporary URLs. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// NewGateway constructs the gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return nil, fmt.Errorf("public base URL required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		objects:    cfg.Objects,
		httpClient: httpClient,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:        time.Now,
	}, nil
}

// UploadBuffer validates and persists a PDF for a request, returning a stable
// public URL. Paths are never reused: a key collision is retried exactly once
// under a fresh timestamp, then fails hard.
func (g *Gateway) UploadBuffer(ctx context.Context, pdf []byte, requestID string, docType domain.DocumentType, subtype domain.DocumentSubtype) (Upload, error) {
	if strings.TrimSpace(requestID) == "" {
		return Upload{}, newError(CodeMissingInput, "request ID is required", nil)
	}
	if len(pdf) == 0 {
		return Upload{}, newError(CodeMissingInput, "empty PDF buffer", nil)
	}
	if len(pdf) > MaxPDFBytes {
		return Upload{}, newError(CodeSizeExceeded, fmt.Sprintf("PDF is %d bytes, limit is %d", len(pdf), MaxPDFBytes), nil)
	}
	if !bytes.HasPrefix(pdf, []byte(pdfMagic)) {
		return Upload{}, newError(CodeInvalidFormat, "payload does not start with a PDF signature", nil)
	}

	ts := g.now().UnixMilli()
	path := g.storagePath(requestID, docType, subtype, ts)
	err := g.objects.Put(ctx, path, bytes.NewReader(pdf), int64(len(pdf)), "application/pdf", cacheControl)
	if err == ErrObjectExists {
		// The retry key must differ even when the clock has not moved past
		// the colliding millisecond.
		retryTS := g.now().UnixMilli()
		if retryTS <= ts {
			retryTS = ts + 1
		}
		path = g.storagePath(requestID, docType, subtype, retryTS)
		err = g.objects.Put(ctx, path, bytes.NewReader(pdf), int64(len(pdf)), "application/pdf", cacheControl)
	}
	if err != nil {
		return Upload{}, newError(CodeUploadFailed, "store PDF", err)
	}
	return Upload{
		PermanentURL: g.publicPrefix() + path,
		StoragePath:  path,
	}, nil
}

// UploadFromTemporaryURL downloads an expiring URL and persists its content
// via UploadBuffer. Nothing is persisted when download or validation fails.
func (g *Gateway) UploadFromTemporaryURL(ctx context.Context, temporaryURL, requestID string, docType domain.DocumentType, subtype domain.DocumentSubtype) (Upload, error) {
	parsed, err := url.Parse(temporaryURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Upload{}, newError(CodeMissingInput, fmt.Sprintf("not an absolute http(s) URL: %q", temporaryURL), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, temporaryURL, nil)
	if err != nil {
		return Upload{}, newError(CodeDownloadFailed, "build download request", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Upload{}, newError(CodeDownloadFailed, "download temporary URL", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Upload{}, newError(CodeDownloadFailed, fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPDFBytes+1))
	if err != nil {
		return Upload{}, newError(CodeDownloadFailed, "read downloaded body", err)
	}
	return g.UploadBuffer(ctx, body, requestID, docType, subtype)
}

// IsPermanentURL reports whether the URL points into this system's own
// public bucket. Any third-party URL is non-permanent by definition.
func (g *Gateway) IsPermanentURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, g.publicPrefix())
}

// ExtractRequestID recovers the owning request ID from a permanent URL, or
// returns "" when the URL is not one of ours.
func (g *Gateway) ExtractRequestID(rawURL string) string {
	rest, ok := strings.CutPrefix(rawURL, g.publicPrefix())
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

func (g *Gateway) publicPrefix() string {
	return g.publicBase + "/public/" + g.bucket + "/"
}

func (g *Gateway) storagePath(requestID string, docType domain.DocumentType, subtype domain.DocumentSubtype, millis int64) string {
	return fmt.Sprintf("%s/%s_%s_%d.pdf", requestID, docType, subtype, millis)
}
