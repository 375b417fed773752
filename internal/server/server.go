package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"caredocs/internal/ratelimit"
	"caredocs/internal/util"
	"caredocs/pkg/approval"
	"caredocs/pkg/docgen"
	"caredocs/pkg/domain"
	"caredocs/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Generator *docgen.Generator
	Checker   *approval.Checker
	Store     store.Store
	// Limiter guards document generation. Nil disables the limit.
	Limiter *ratelimit.FixedWindowLimiter
}

// Server exposes the document and approval operations to the doctor-review
// workflow.
type Server struct {
	generator *docgen.Generator
	checker   *approval.Checker
	store     store.Store
	limiter   *ratelimit.FixedWindowLimiter
	mux       *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, errors.New("generator required")
	}
	if cfg.Checker == nil {
		return nil, errors.New("checker required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	s := &Server{
		generator: cfg.Generator,
		checker:   cfg.Checker,
		store:     cfg.Store,
		limiter:   cfg.Limiter,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/documents", s.handleDocuments)
	s.mux.HandleFunc("/requests/", s.handleRequestByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type draftPayload struct {
	PatientName    string            `json:"patientName"`
	DateOfBirth    string            `json:"dateOfBirth"`
	DoctorName     string            `json:"doctorName"`
	ProviderNumber string            `json:"providerNumber"`
	IssueDate      string            `json:"issueDate"`
	StartDate      string            `json:"startDate"`
	EndDate        string            `json:"endDate"`
	Reason         string            `json:"reason"`
	TestsRequested string            `json:"testsRequested"`
	Extra          map[string]string `json:"extra"`
}

type generateRequest struct {
	RequestID string       `json:"requestId"`
	Subtype   string       `json:"subtype"`
	Draft     draftPayload `json:"draft"`
}

type generateResponse struct {
	URL        string `json:"url"`
	Permanent  bool   `json:"permanent"`
	DocumentID string `json:"documentId,omitempty"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	draft, err := draftFromPayload(req.Draft)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.generator.Generate(r.Context(), draft, domain.DocumentSubtype(req.Subtype), req.RequestID)
	if err != nil {
		if errors.Is(err, docgen.ErrTemplateNotConfigured) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "document generation failed")
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		URL:        res.URL,
		Permanent:  res.Permanent,
		DocumentID: res.DocumentID,
	})
}

// /requests/{id}/approval, /requests/{id}/approve, /requests/{id}/document
func (s *Server) handleRequestByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/requests/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) != 2 {
		notFound(w, "not found")
		return
	}
	switch parts[1] {
	case "approval":
		s.handleApprovalCheck(w, r, id)
	case "approve":
		s.handleApprove(w, r, id)
	case "document":
		s.handleDocumentStatus(w, r, id)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleApprovalCheck(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	res, err := s.checker.CheckInvariants(r.Context(), id, r.URL.Query().Get("pdfUrl"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type approveRequest struct {
	PDFURL string `json:"pdfUrl"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req approveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.checker.AssertInvariants(r.Context(), id, req.PDFURL); err != nil {
		var invErr *approval.InvariantError
		if errors.As(err, &invErr) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   invErr.Message,
				"code":    invErr.Code,
				"details": invErr.Details,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.store.SetRequestStatus(r.Context(), id, domain.StatusApproved); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update request status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	perm, err := s.checker.MostRecentDocumentURLIsPermanent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func draftFromPayload(p draftPayload) (docgen.Draft, error) {
	draft := docgen.Draft{
		PatientName:    p.PatientName,
		DoctorName:     p.DoctorName,
		ProviderNumber: p.ProviderNumber,
		Reason:         p.Reason,
		TestsRequested: p.TestsRequested,
		Extra:          p.Extra,
	}
	var err error
	if draft.DateOfBirth, err = parseDate(p.DateOfBirth); err != nil {
		return docgen.Draft{}, errors.New("invalid dateOfBirth, want YYYY-MM-DD")
	}
	if draft.IssueDate, err = parseDate(p.IssueDate); err != nil {
		return docgen.Draft{}, errors.New("invalid issueDate, want YYYY-MM-DD")
	}
	if draft.StartDate, err = parseDate(p.StartDate); err != nil {
		return docgen.Draft{}, errors.New("invalid startDate, want YYYY-MM-DD")
	}
	if draft.EndDate, err = parseDate(p.EndDate); err != nil {
		return docgen.Draft{}, errors.New("invalid endDate, want YYYY-MM-DD")
	}
	return draft, nil
}

func parseDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
