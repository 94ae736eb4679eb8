package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

type admitterFake struct {
	bundle domain.AcceptedBundle
	err    error

	gotCaseID string
	gotFiles  []string
}

func (f *admitterFake) Admit(_ context.Context, caseID string, files []ports.UploadFile) (domain.AcceptedBundle, error) {
	f.gotCaseID = caseID
	for _, file := range files {
		f.gotFiles = append(f.gotFiles, file.Filename)
	}
	if f.err != nil {
		return domain.AcceptedBundle{}, f.err
	}
	return f.bundle, nil
}

type runnerFake struct {
	startErr  error
	cancelErr error

	startedCase   string
	cancelledCase string
}

func (f *runnerFake) Start(caseID string, _ domain.AcceptedBundle) error {
	f.startedCase = caseID
	return f.startErr
}

func (f *runnerFake) Cancel(caseID string) error {
	f.cancelledCase = caseID
	return f.cancelErr
}

type readerFake struct {
	snapshot    ports.CaseSnapshot
	snapshotErr error
	progress    domain.ProgressRecord
	progressErr error
	exists      bool
	list        []ports.CaseSnapshot
}

func (f *readerFake) Snapshot(context.Context, string) (ports.CaseSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *readerFake) Progress(context.Context, string) (domain.ProgressRecord, error) {
	return f.progress, f.progressErr
}

func (f *readerFake) Exists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *readerFake) List(context.Context) ([]ports.CaseSnapshot, error) {
	return f.list, nil
}

func newTestHandler(admitter *admitterFake, runner *runnerFake, reader *readerFake, opts Options) http.Handler {
	return NewRouter(admitter, runner, reader, opts).Handler()
}

func multipartBody(t *testing.T, caseID string, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if caseID != "" {
		if err := writer.WriteField("case_id", caseID); err != nil {
			t.Fatalf("write case_id field: %v", err)
		}
	}
	for _, name := range filenames {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("scan-bytes")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestCreateCaseAccepted(t *testing.T) {
	admitter := &admitterFake{bundle: domain.AcceptedBundle{
		CaseID: "case-1",
		ScanFiles: map[domain.Modality]string{
			domain.ModalityT1: "t1.nii.gz",
			domain.ModalityT2: "t2.nii.gz",
		},
		FileCount: 2,
	}}
	runner := &runnerFake{}
	handler := newTestHandler(admitter, runner, &readerFake{}, Options{})

	body, contentType := multipartBody(t, "case-1", "t1.nii.gz", "t2.nii.gz")
	req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	payload := decodeBody(t, res)
	if payload["status"] != "processing" || payload["case_id"] != "case-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if admitter.gotCaseID != "case-1" || len(admitter.gotFiles) != 2 {
		t.Fatalf("admitter got %q, %v", admitter.gotCaseID, admitter.gotFiles)
	}
	if runner.startedCase != "case-1" {
		t.Fatalf("expected worker started for case-1, got %q", runner.startedCase)
	}
}

func TestCreateCaseValidationFailure(t *testing.T) {
	admitter := &admitterFake{err: &domain.ValidationError{
		CaseID:        "case-1",
		MissingScans:  []string{"T2"},
		UploadedFiles: []string{"t1.nii.gz"},
		DetectedScans: []string{"T1"},
	}}
	handler := newTestHandler(admitter, &runnerFake{}, &readerFake{}, Options{})

	body, contentType := multipartBody(t, "case-1", "t1.nii.gz")
	req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	missing, _ := payload["missing_files"].([]any)
	if len(missing) != 1 || missing[0] != "T2" {
		t.Fatalf("expected missing T2, got %v", payload)
	}
	if payload["error"] == "" {
		t.Fatalf("expected error message, got %v", payload)
	}
}

func TestCreateCaseDuplicateConflict(t *testing.T) {
	admitter := &admitterFake{err: domain.WrapError(domain.ErrCaseExists, "create case", errors.New(`case "case-1"`))}
	handler := newTestHandler(admitter, &runnerFake{}, &readerFake{}, Options{})

	body, contentType := multipartBody(t, "case-1", "t1.nii.gz", "t2.nii.gz")
	req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestCreateCaseMissingFields(t *testing.T) {
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, &readerFake{}, Options{})

	body, contentType := multipartBody(t, "", "t1.nii.gz")
	req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing case_id, got %d", res.Code)
	}

	body, contentType = multipartBody(t, "case-1")
	req = httptest.NewRequest(http.MethodPost, "/v1/cases", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing files, got %d", res.Code)
	}
}

func TestCreateCaseUploadTooLarge(t *testing.T) {
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, &readerFake{}, Options{MaxUploadBytes: 64})

	body, contentType := multipartBody(t, "case-1", "t1.nii.gz", "t2.nii.gz")
	req := httptest.NewRequest(http.MethodPost, "/v1/cases", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestGetCaseStatusShapes(t *testing.T) {
	tests := []struct {
		name     string
		snapshot ports.CaseSnapshot
		check    func(t *testing.T, payload map[string]any)
	}{
		{
			name: "processing",
			snapshot: ports.CaseSnapshot{
				CaseID: "case-1",
				Status: domain.StatusProcessing,
				Progress: &domain.ProgressRecord{
					Percentage: 10,
					Step:       domain.StepPipelineStart,
				},
			},
			check: func(t *testing.T, payload map[string]any) {
				progress, _ := payload["progress"].(map[string]any)
				if progress == nil || progress["percentage"] != float64(10) {
					t.Fatalf("expected progress, got %v", payload)
				}
			},
		},
		{
			name: "error",
			snapshot: ports.CaseSnapshot{
				CaseID: "case-1",
				Status: domain.StatusError,
				Error:  "pipeline exited with code 3",
			},
			check: func(t *testing.T, payload map[string]any) {
				if payload["error"] != "pipeline exited with code 3" {
					t.Fatalf("expected error detail, got %v", payload)
				}
			},
		},
		{
			name: "done",
			snapshot: ports.CaseSnapshot{
				CaseID:  "case-1",
				Status:  domain.StatusDone,
				Results: map[string]string{"classification": "high-grade"},
			},
			check: func(t *testing.T, payload map[string]any) {
				results, _ := payload["results"].(map[string]any)
				if results == nil || results["classification"] != "high-grade" {
					t.Fatalf("expected results, got %v", payload)
				}
			},
		},
		{
			name: "cancelled",
			snapshot: ports.CaseSnapshot{
				CaseID: "case-1",
				Status: domain.StatusCancelled,
			},
			check: func(t *testing.T, payload map[string]any) {
				if payload["message"] == nil {
					t.Fatalf("expected cancel message, got %v", payload)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(&admitterFake{}, &runnerFake{}, &readerFake{snapshot: tt.snapshot}, Options{})
			req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1", nil)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", res.Code)
			}
			payload := decodeBody(t, res)
			if payload["status"] != string(tt.snapshot.Status) {
				t.Fatalf("expected status %s, got %v", tt.snapshot.Status, payload["status"])
			}
			tt.check(t, payload)
		})
	}
}

func TestGetCaseNotFound(t *testing.T) {
	reader := &readerFake{snapshotErr: domain.WrapError(domain.ErrCaseNotFound, "read status", errors.New(`case "ghost"`))}
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, reader, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/ghost", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetProgressNotFound(t *testing.T) {
	reader := &readerFake{progressErr: domain.WrapError(domain.ErrCaseNotFound, "read progress", errors.New("no record"))}
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, reader, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1/progress", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetProgressReturnsRecord(t *testing.T) {
	reader := &readerFake{progress: domain.ProgressRecord{Percentage: 100, Step: domain.StepCompleted}}
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, reader, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1/progress", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["percentage"] != float64(100) || payload["step"] != domain.StepCompleted {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestCancelCase(t *testing.T) {
	runner := &runnerFake{}
	handler := newTestHandler(&admitterFake{}, runner, &readerFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/cases/case-1/cancel", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if runner.cancelledCase != "case-1" {
		t.Fatalf("expected cancel for case-1, got %q", runner.cancelledCase)
	}
	payload := decodeBody(t, res)
	if payload["success"] != true {
		t.Fatalf("expected success payload, got %v", payload)
	}
}

func TestCancelMissingCase(t *testing.T) {
	runner := &runnerFake{cancelErr: domain.WrapError(domain.ErrCaseNotFound, "cancel case", errors.New(`case "ghost"`))}
	handler := newTestHandler(&admitterFake{}, runner, &readerFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/cases/ghost/cancel", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestCaseExists(t *testing.T) {
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, &readerFake{exists: true}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1/exists", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["exists"] != true || payload["case_id"] != "case-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestListCases(t *testing.T) {
	reader := &readerFake{list: []ports.CaseSnapshot{
		{CaseID: "case-2", Status: domain.StatusProcessing, CreatedAt: time.Now()},
		{CaseID: "case-1", Status: domain.StatusDone, CreatedAt: time.Now().Add(-time.Hour)},
	}}
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, reader, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	cases, _ := payload["cases"].([]any)
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %v", payload)
	}
	first, _ := cases[0].(map[string]any)
	if first["case_id"] != "case-2" {
		t.Fatalf("expected listing order preserved, got %v", cases)
	}
}

func TestInternalErrorIsRedacted(t *testing.T) {
	reader := &readerFake{snapshotErr: fmt.Errorf("open %s: permission denied", "/var/data/results/case-1/status.txt")}
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, reader, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/case-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "/var/data") {
		t.Fatalf("internal path leaked to client: %s", res.Body.String())
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, &readerFake{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(&admitterFake{}, &runnerFake{}, &readerFake{}, Options{})

	for path, method := range map[string]string{
		"/v1/cases/case-1":        http.MethodPost,
		"/v1/cases/case-1/cancel": http.MethodGet,
		"/v1/cases/case-1/exists": http.MethodPost,
		"/v1/cases":               http.MethodDelete,
	} {
		req := httptest.NewRequest(method, path, nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s expected 405, got %d", method, path, res.Code)
		}
	}
}
