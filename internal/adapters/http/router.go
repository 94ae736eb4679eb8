package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/observability/metrics"
)

// multipartMemoryLimit caps how much of an upload is buffered in memory
// before spilling to temp files. Scan bundles routinely run to hundreds of
// megabytes, so most of the body lands on disk.
const multipartMemoryLimit = 32 << 20

// Options tunes the HTTP surface; zero values disable the corresponding
// traffic gate.
type Options struct {
	ServiceName    string
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	QueueTimeout   time.Duration
	ServerMetrics  *metrics.HTTPServerMetrics
	// HealthCheck, when set, gates /healthz on storage readiness.
	HealthCheck func() error
}

type Router struct {
	admitter ports.CaseAdmitter
	runner   ports.CaseRunner
	reader   ports.CaseReader
	opts     Options
}

func NewRouter(
	admitter ports.CaseAdmitter,
	runner ports.CaseRunner,
	reader ports.CaseReader,
	opts Options,
) *Router {
	if opts.ServiceName == "" {
		opts.ServiceName = "brainscan-insight-navigator"
	}
	return &Router{
		admitter: admitter,
		runner:   runner,
		reader:   reader,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", rt.root)
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/cases", rt.cases)
	mux.HandleFunc("/v1/cases/", rt.caseRoutes)
	if rt.opts.ServerMetrics != nil {
		mux.Handle("/metrics", rt.opts.ServerMetrics.Handler())
	}

	var handler http.Handler = mux
	if rt.opts.ServerMetrics != nil {
		handler = rt.opts.ServerMetrics.Middleware(rt.opts.ServiceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.QueueTimeout)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": rt.opts.ServiceName,
		"status":  "running",
	})
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	if rt.opts.HealthCheck != nil {
		if err := rt.opts.HealthCheck(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) cases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.createCase(w, r)
	case http.MethodGet:
		rt.listCases(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) createCase(w http.ResponseWriter, r *http.Request) {
	if rt.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "upload exceeds the size limit",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	caseID := strings.TrimSpace(r.FormValue("case_id"))
	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "form field 'case_id' is required"})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	files := make([]ports.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable upload part"})
			return
		}
		defer file.Close()
		files = append(files, ports.UploadFile{Filename: header.Filename, Body: file})
	}

	bundle, err := rt.admitter.Admit(r.Context(), caseID, files)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rt.runner.Start(bundle.CaseID, bundle); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":         string(domain.StatusProcessing),
		"case_id":        bundle.CaseID,
		"message":        "upload accepted, processing started",
		"detected_scans": bundle.DetectedScans(),
		"file_count":     bundle.FileCount,
	})
}

func (rt *Router) listCases(w http.ResponseWriter, r *http.Request) {
	snapshots, err := rt.reader.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	cases := make([]map[string]any, 0, len(snapshots))
	for _, snapshot := range snapshots {
		cases = append(cases, map[string]any{
			"case_id":    snapshot.CaseID,
			"status":     string(snapshot.Status),
			"created_at": snapshot.CreatedAt.UTC().Format(time.RFC3339),
			"metadata":   snapshot.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (rt *Router) caseRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cases/")
	caseID, action, _ := strings.Cut(rest, "/")
	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "case id is required"})
		return
	}

	switch action {
	case "":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		rt.getCase(w, r, caseID)
	case "progress":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		rt.getProgress(w, r, caseID)
	case "cancel":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		rt.cancelCase(w, caseID)
	case "exists":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		rt.caseExists(w, r, caseID)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request, caseID string) {
	snapshot, err := rt.reader.Snapshot(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	payload := map[string]any{
		"case_id": snapshot.CaseID,
		"status":  string(snapshot.Status),
	}
	switch snapshot.Status {
	case domain.StatusInitializing, domain.StatusProcessing:
		if snapshot.Progress != nil {
			payload["progress"] = snapshot.Progress
		}
	case domain.StatusError:
		payload["error"] = snapshot.Error
	case domain.StatusDone:
		payload["results"] = snapshot.Results
	case domain.StatusCancelled:
		payload["message"] = "processing was cancelled"
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) getProgress(w http.ResponseWriter, r *http.Request, caseID string) {
	record, err := rt.reader.Progress(r.Context(), caseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "progress record not found"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) cancelCase(w http.ResponseWriter, caseID string) {
	if err := rt.runner.Cancel(caseID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "processing cancelled",
	})
}

func (rt *Router) caseExists(w http.ResponseWriter, r *http.Request, caseID string) {
	exists, err := rt.reader.Exists(r.Context(), caseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"case_id": caseID,
		"exists":  exists,
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
