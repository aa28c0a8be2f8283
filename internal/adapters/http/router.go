package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/autoreport-rag/internal/config"
	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
	"github.com/kirillkom/autoreport-rag/internal/core/usecase"
	"github.com/kirillkom/autoreport-rag/internal/observability/metrics"
)

const (
	defaultTranscriptLimit = 50
	defaultUploadBytes     = 64 << 20
)

// Dependencies are the services the router serves. Transcripts and Metrics
// are optional.
type Dependencies struct {
	Queries     ports.QueryService
	Reports     ports.ReportService
	Sessions    *usecase.SessionStore
	Transcripts ports.TranscriptReader
	Metrics     *metrics.HTTPServerMetrics
	Logger      *slog.Logger
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	if deps.Queries == nil || deps.Reports == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("http router: queries, reports and sessions are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{cfg: cfg, deps: deps, validator: validator}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("POST /v1/rag/query", rt.queryRAG)
	mux.HandleFunc("GET /v1/rag/search", rt.searchPassages)
	mux.HandleFunc("POST /v1/sessions/{session_id}/clear", rt.clearSession)
	mux.HandleFunc("DELETE /v1/sessions/{session_id}", rt.deleteSession)
	mux.HandleFunc("GET /v1/sessions/{session_id}/transcript", rt.transcript)
	mux.HandleFunc("GET /v1/reports/stats", rt.reportStats)
	mux.HandleFunc("POST /v1/reports", rt.uploadReport)

	var onReject func(string)
	if rt.deps.Metrics != nil {
		onReject = rt.deps.Metrics.RecordRejected
	}

	var handler http.Handler = rt.validator.middleware(mux)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.deps.Logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPISpec)
}

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type citationResponse struct {
	PassageID string  `json:"passage_id"`
	Company   string  `json:"company"`
	Year      int     `json:"year,omitempty"`
	Source    string  `json:"source"`
	Page      int     `json:"page,omitempty"`
	Score     float64 `json:"score"`
	Text      string  `json:"text,omitempty"`
}

type queryResponse struct {
	SessionID    string             `json:"session_id"`
	Answer       string             `json:"answer"`
	Insufficient bool               `json:"insufficient"`
	Plan         domain.QueryPlan   `json:"plan"`
	Citations    []citationResponse `json:"citations"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, http.StatusBadRequest, "question is required")
		return
	}

	session := rt.deps.Sessions.GetOrCreate(req.SessionID)
	answer, err := rt.deps.Queries.Ask(r.Context(), session, req.Question)
	if err != nil {
		// Rejected provider credentials end the conversation.
		if domain.IsKind(err, domain.ErrUnauthorized) {
			rt.deps.Sessions.Delete(session.ID())
		}
		rt.writeDomainError(w, r, "rag_query_failed", err)
		return
	}

	citations := make([]citationResponse, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		citations = append(citations, citationResponse{
			PassageID: c.PassageID,
			Company:   string(c.Provenance.Company),
			Year:      c.Provenance.Year,
			Source:    c.Provenance.Source,
			Page:      c.Provenance.Page,
			Score:     c.Score,
		})
	}
	writeJSON(w, http.StatusOK, queryResponse{
		SessionID:    session.ID(),
		Answer:       answer.Text,
		Insufficient: answer.Insufficient,
		Plan:         answer.Plan,
		Citations:    citations,
	})
}

func (rt *Router) searchPassages(w http.ResponseWriter, r *http.Request) {
	var (
		question  string
		companies []string
		years     []int
		topK      int
	)
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "q", query, &question); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "company", query, &companies); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "year", query, &years); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "top_k", query, &topK); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if topK <= 0 {
		topK = rt.cfg.RAGTopK
	}

	filter := domain.Filter{Years: years}
	for _, c := range companies {
		company, ok := rt.matchCompany(c)
		if !ok {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown company %q", c))
			return
		}
		filter.Companies = append(filter.Companies, company)
	}

	results, err := rt.deps.Queries.Search(r.Context(), question, filter.Normalized(), topK)
	if err != nil {
		rt.writeDomainError(w, r, "rag_search_failed", err)
		return
	}

	out := make([]citationResponse, 0, len(results))
	for _, sp := range results {
		p := sp.Passage
		out = append(out, citationResponse{
			PassageID: p.ID,
			Company:   string(p.Provenance.Company),
			Year:      p.Provenance.Year,
			Source:    p.Provenance.Source,
			Page:      p.Provenance.Page,
			Score:     sp.Score,
			Text:      p.Text,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (rt *Router) matchCompany(name string) (domain.Company, bool) {
	companies := domain.DefaultCompanies()
	if len(rt.cfg.RAGCompanies) > 0 {
		companies = companies[:0]
		for _, c := range rt.cfg.RAGCompanies {
			companies = append(companies, domain.Company(c))
		}
	}
	for _, c := range companies {
		if strings.EqualFold(string(c), strings.TrimSpace(name)) {
			return c, true
		}
	}
	return "", false
}

func (rt *Router) clearSession(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.deps.Sessions.Get(r.PathValue("session_id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	session.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !rt.deps.Sessions.Delete(r.PathValue("session_id")) {
		writeError(w, r, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transcript prefers the durable store and falls back to the live session
// window when no store is configured.
func (rt *Router) transcript(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	limit := defaultTranscriptLimit
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var turns []domain.Turn
	if rt.deps.Transcripts != nil {
		stored, err := rt.deps.Transcripts.ListTurns(r.Context(), sessionID, limit)
		if err != nil {
			rt.writeDomainError(w, r, "transcript_read_failed", err)
			return
		}
		turns = stored
	} else {
		session, ok := rt.deps.Sessions.Get(sessionID)
		if !ok {
			writeError(w, r, http.StatusNotFound, "session not found")
			return
		}
		turns = session.History()
		if len(turns) > limit {
			turns = turns[len(turns)-limit:]
		}
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "turns": turns})
}

func (rt *Router) reportStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.deps.Reports.Stats(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, "report_stats_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) uploadReport(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.APIMaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, r, http.StatusRequestEntityTooLarge, "report file is too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "multipart form is required")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	company := strings.TrimSpace(r.FormValue("company"))
	if company == "" {
		writeError(w, r, http.StatusBadRequest, "multipart field 'company' is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	path, err := rt.deps.Reports.Upload(r.Context(), company, header.Filename, file)
	if err != nil {
		rt.writeDomainError(w, r, "report_upload_failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"path":   path,
		"status": "reindex_requested",
	})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := mapErrorToHTTPStatus(err)
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		rt.deps.Logger.Error(event, attrs...)
	} else {
		rt.deps.Logger.Warn(event, attrs...)
	}
	writeError(w, r, status, publicMessage(err, status))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]string{"error": message}
	if requestID := requestIDFromContext(r.Context()); requestID != "" {
		body["request_id"] = requestID
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
