// Package approval gates the "approved" transition of a medical request
// behind fixed business invariants. A request must never reach approved
// while its active document URL is a temporary, expiring one.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"caredocs/pkg/domain"
)

// ViolationKind tags an invariant violation. Callers switch on the tag,
// never on message text.
type ViolationKind string

const (
	KindRequestNotFound ViolationKind = "request_not_found"
	KindPaymentRequired ViolationKind = "payment_required"
	KindInvalidStatus   ViolationKind = "invalid_status"
	KindTemporaryURL    ViolationKind = "temporary_url"
	KindInvalidURL      ViolationKind = "invalid_url"
	KindDocumentMissing ViolationKind = "document_missing"
)

// Violation is one failed invariant with its operator-facing message.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
	Detail  string        `json:"detail,omitempty"`
}

// Result is the outcome of an invariant check. Valid iff Errors is empty;
// warnings never block approval but should reach operators.
type Result struct {
	Valid    bool        `json:"valid"`
	Errors   []Violation `json:"errors"`
	Warnings []string    `json:"warnings"`
}

// Code is the coarse classification carried by InvariantError.
type Code string

const (
	CodePaymentRequired Code = "PAYMENT_REQUIRED"
	CodeInvalidStatus   Code = "INVALID_STATUS"
	CodeTemporaryURL    Code = "TEMPORARY_URL"
	CodeDocumentMissing Code = "DOCUMENT_MISSING"
)

// InvariantError is thrown by AssertInvariants when any hard error is
// present. Details carries every failing invariant so remediation guidance
// stays precise.
type InvariantError struct {
	Code    Code
	Message string
	Details []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Permanence reports on the most recent document for a request.
type Permanence struct {
	Valid bool   `json:"valid"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// RequestSource is the slice of the store the checker reads.
type RequestSource interface {
	GetRequest(ctx context.Context, id string) (domain.MedicalRequest, bool, error)
	LatestDocument(ctx context.Context, requestID string) (domain.Document, bool, error)
	HasDocument(ctx context.Context, requestID string) (bool, error)
}

// URLClassifier decides whether a URL points into our own permanent bucket.
type URLClassifier interface {
	IsPermanentURL(url string) bool
}

// Checker evaluates approval invariants against the request store.
// It never mutates state and never retries; remediation is the caller's job.
type Checker struct {
	source     RequestSource
	classifier URLClassifier
	tempHosts  []string
}

// Option customizes the checker.
type Option func(*Checker)

// WithTemporaryURLPatterns replaces the known temporary-vendor URL
// substrings. The known-bad list is deployment knowledge.
func WithTemporaryURLPatterns(patterns []string) Option {
	return func(c *Checker) {
		c.tempHosts = patterns
	}
}

// NewChecker constructs the checker. Default temporary patterns cover the
// rendering vendor and generic signed object-storage URLs.
func NewChecker(source RequestSource, classifier URLClassifier, opts ...Option) (*Checker, error) {
	if source == nil {
		return nil, fmt.Errorf("request source required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("url classifier required")
	}
	c := &Checker{
		source:     source,
		classifier: classifier,
		tempHosts:  []string{"apitemplate.io", "/object/sign/", "X-Amz-Expires="},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var approvableStatuses = map[domain.RequestStatus]bool{
	domain.StatusPending:       true,
	domain.StatusNeedsFollowUp: true,
}

// CheckInvariants evaluates every invariant for the request and, when
// candidatePDFURL is non-empty, the document-permanence invariant for that
// URL. The result is a pure function of request state plus the candidate.
func (c *Checker) CheckInvariants(ctx context.Context, requestID, candidatePDFURL string) (Result, error) {
	req, found, err := c.source.GetRequest(ctx, requestID)
	if err != nil {
		return Result{}, fmt.Errorf("load request %s: %w", requestID, err)
	}
	res := Result{Errors: []Violation{}, Warnings: []string{}}
	if !found {
		res.Errors = append(res.Errors, Violation{
			Kind:    KindRequestNotFound,
			Message: "Request not found",
			Detail:  requestID,
		})
		return res, nil
	}

	if req.PaymentStatus != domain.PaymentPaid {
		res.Errors = append(res.Errors, Violation{
			Kind:    KindPaymentRequired,
			Message: fmt.Sprintf("Payment required: payment status is %q", req.PaymentStatus),
			Detail:  string(req.PaymentStatus),
		})
	}
	if !approvableStatuses[req.Status] {
		res.Errors = append(res.Errors, Violation{
			Kind:    KindInvalidStatus,
			Message: fmt.Sprintf("Invalid status for approval: %q", req.Status),
			Detail:  string(req.Status),
		})
	}
	if candidatePDFURL != "" {
		if v, ok := c.classifyCandidate(candidatePDFURL); !ok {
			res.Errors = append(res.Errors, v)
		} else if v.Message != "" {
			res.Warnings = append(res.Warnings, v.Message)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res, nil
}

// classifyCandidate returns (violation, false) for a hard error, or
// (warning-as-violation, true) where an empty message means clean.
func (c *Checker) classifyCandidate(candidate string) (Violation, bool) {
	if c.classifier.IsPermanentURL(candidate) {
		return Violation{}, true
	}
	for _, pattern := range c.tempHosts {
		if strings.Contains(candidate, pattern) {
			return Violation{
				Kind:    KindTemporaryURL,
				Message: "Document URL is temporary and will expire; regenerate and persist it before approval",
				Detail:  candidate,
			}, false
		}
	}
	parsed, err := url.Parse(candidate)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Violation{
			Kind:    KindInvalidURL,
			Message: "Invalid document URL format",
			Detail:  candidate,
		}, false
	}
	// Unrecognized but well formed: non-blocking uncertainty.
	return Violation{
		Message: fmt.Sprintf("Document URL %q is not in our storage and might not be permanent", candidate),
	}, true
}

// AssertInvariants wraps CheckInvariants and fails with a typed
// InvariantError classified from the first violation's tag. Warnings on an
// otherwise valid result are logged, not fatal.
func (c *Checker) AssertInvariants(ctx context.Context, requestID, candidatePDFURL string) error {
	res, err := c.CheckInvariants(ctx, requestID, candidatePDFURL)
	if err != nil {
		return err
	}
	if res.Valid {
		for _, w := range res.Warnings {
			slog.Warn("approval invariant warning", "request_id", requestID, "warning", w)
		}
		return nil
	}
	details := make([]string, 0, len(res.Errors))
	for _, v := range res.Errors {
		details = append(details, v.Message)
	}
	first := res.Errors[0]
	return &InvariantError{
		Code:    codeForKind(first.Kind),
		Message: first.Message,
		Details: details,
	}
}

// codeForKind maps violation tags onto the four-code public contract.
// A missing request means there is nothing to approve; a malformed URL
// cannot be proven permanent.
func codeForKind(kind ViolationKind) Code {
	switch kind {
	case KindPaymentRequired:
		return CodePaymentRequired
	case KindInvalidStatus:
		return CodeInvalidStatus
	case KindTemporaryURL, KindInvalidURL:
		return CodeTemporaryURL
	default:
		return CodeDocumentMissing
	}
}

// DocumentExistsForRequest reports whether at least one document row
// references the request.
func (c *Checker) DocumentExistsForRequest(ctx context.Context, requestID string) (bool, error) {
	return c.source.HasDocument(ctx, requestID)
}

// MostRecentDocumentURLIsPermanent loads the most-recently-created document
// for the request and classifies its URL.
func (c *Checker) MostRecentDocumentURLIsPermanent(ctx context.Context, requestID string) (Permanence, error) {
	doc, found, err := c.source.LatestDocument(ctx, requestID)
	if err != nil {
		return Permanence{}, fmt.Errorf("load latest document for %s: %w", requestID, err)
	}
	if !found {
		return Permanence{Valid: false, Error: "No document found for request"}, nil
	}
	if !c.classifier.IsPermanentURL(doc.PDFURL) {
		return Permanence{Valid: false, URL: doc.PDFURL, Error: "Document URL is not permanent"}, nil
	}
	return Permanence{Valid: true, URL: doc.PDFURL}, nil
}
