package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/openraci/raciboard/internal/services/directory"
	dirsqlite "github.com/openraci/raciboard/internal/services/directory/storage/sqlite"
	"github.com/openraci/raciboard/internal/services/matrix/participant"
	"github.com/openraci/raciboard/internal/services/matrix/service"
	"github.com/openraci/raciboard/internal/services/matrix/storage/sqlite"
	"github.com/openraci/raciboard/internal/services/matrix/view"
)

func newTestAPI(t *testing.T) *echo.Echo {
	t.Helper()
	dataDir := t.TempDir()

	matrixStore, err := sqlite.Open(filepath.Join(dataDir, "matrix.db"))
	if err != nil {
		t.Fatalf("open matrix store: %v", err)
	}
	dirStore, err := dirsqlite.Open(filepath.Join(dataDir, "directory.db"))
	if err != nil {
		t.Fatalf("open directory store: %v", err)
	}
	t.Cleanup(func() {
		_ = matrixStore.Close()
		_ = dirStore.Close()
	})

	dir := directory.New(dirStore)
	svc := service.New(matrixStore, participant.NewResolver(dir), dir)
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	e := echo.New()
	Register(e, svc, dir, logger)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(actingUserHeader, "user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) view.View {
	t.Helper()
	var snapshot view.View
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode view: %v (body %s)", err, rec.Body.String())
	}
	return snapshot
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
}

func wantErrorCode(t *testing.T, rec *httptest.ResponseRecorder, code string) {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (body %s)", err, rec.Body.String())
	}
	if resp.Code != code {
		t.Fatalf("error code = %s, want %s", resp.Code, code)
	}
}

func seedDirectory(t *testing.T, e *echo.Echo) {
	t.Helper()
	wantStatus(t, doJSON(t, e, http.MethodPut, "/api/members/user-po", `{"displayName":"Petra Owens"}`), http.StatusNoContent)
	wantStatus(t, doJSON(t, e, http.MethodPut, "/api/members/tm-1", `{"displayName":"Tara Miles"}`), http.StatusNoContent)
	wantStatus(t, doJSON(t, e, http.MethodPut, "/api/members/user-sm", `{"displayName":"Sam Masters"}`), http.StatusNoContent)
	wantStatus(t, doJSON(t, e, http.MethodPut, "/api/projects/proj-1", `{"name":"Atlas","productOwnerId":"user-po","pmoUserId":"user-pmo"}`), http.StatusNoContent)
	wantStatus(t, doJSON(t, e, http.MethodPut, "/api/projects/proj-1/members/tm-1", `{"roleLabel":"Developer"}`), http.StatusNoContent)
	wantStatus(t, doJSON(t, e, http.MethodPut, "/api/projects/proj-1/members/user-sm", `{"roleLabel":"Scrum Master"}`), http.StatusNoContent)
}

func createMatrixForTest(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/api/projects/proj-1/matrices", `{"name":"Release readiness"}`)
	wantStatus(t, rec, http.StatusCreated)
	var matrix matrixSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &matrix); err != nil {
		t.Fatalf("decode matrix: %v (body %s)", err, rec.Body.String())
	}
	return matrix.ID
}

func TestCreateMatrixEndpoint(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)

	rec := doJSON(t, e, http.MethodPost, "/api/projects/proj-1/matrices", `{"name":"Release readiness","description":"Q1"}`)
	wantStatus(t, rec, http.StatusCreated)
	var matrix matrixSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &matrix); err != nil {
		t.Fatalf("decode matrix: %v", err)
	}
	if matrix.ID == "" || matrix.Name != "Release readiness" {
		t.Fatalf("matrix = %+v", matrix)
	}
	if matrix.CreatedBy != "user-1" {
		t.Fatalf("createdBy = %q, want user-1", matrix.CreatedBy)
	}
}

func TestCreateMatrixValidationEndpoint(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)

	rec := doJSON(t, e, http.MethodPost, "/api/projects/proj-1/matrices", `{"name":""}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "MATRIX_NAME_EMPTY")

	rec = doJSON(t, e, http.MethodPost, "/api/projects/ghost/matrices", `{"name":"Plan"}`)
	wantStatus(t, rec, http.StatusNotFound)
	wantErrorCode(t, rec, "NOT_FOUND")
}

func TestMatrixLifecycleEndpoints(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)
	matrixID := createMatrixForTest(t, e)

	rec := doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/tasks", `{"name":"Plan sprint"}`)
	wantStatus(t, rec, http.StatusCreated)

	rec = doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/columns", `{"participant":{"type":"member","id":"tm-1"}}`)
	wantStatus(t, rec, http.StatusCreated)

	rec = doJSON(t, e, http.MethodPut, "/api/matrices/"+matrixID+"/tasks/0/assignments", `{"participant":{"type":"member","id":"tm-1"},"role":"R"}`)
	wantStatus(t, rec, http.StatusOK)
	snapshot := decodeView(t, rec)
	if got := snapshot.Grid[0]["member:tm-1"]; got != "R" {
		t.Fatalf("cell = %q, want R", got)
	}

	rec = doJSON(t, e, http.MethodPut, "/api/matrices/"+matrixID+"/approver", `{"userId":"user-po"}`)
	wantStatus(t, rec, http.StatusOK)
	snapshot = decodeView(t, rec)
	if snapshot.Approver == nil || snapshot.Approver.UserID != "user-po" {
		t.Fatalf("approver = %+v", snapshot.Approver)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/matrices/"+matrixID, "")
	wantStatus(t, rec, http.StatusOK)
	snapshot = decodeView(t, rec)
	if len(snapshot.Tasks) != 1 || len(snapshot.Participants) != 1 {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	rec = doJSON(t, e, http.MethodDelete, "/api/matrices/"+matrixID, "")
	wantStatus(t, rec, http.StatusNoContent)
	rec = doJSON(t, e, http.MethodGet, "/api/matrices/"+matrixID, "")
	wantStatus(t, rec, http.StatusNotFound)
}

func TestTaskEndpoints(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)
	matrixID := createMatrixForTest(t, e)

	rec := doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/tasks", `{"name":"Plan sprint","rowOrder":3}`)
	wantStatus(t, rec, http.StatusCreated)
	snapshot := decodeView(t, rec)
	if len(snapshot.Tasks) != 1 || snapshot.Tasks[0].RowOrder != 3 {
		t.Fatalf("tasks = %+v", snapshot.Tasks)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/tasks", `{"name":"Clash","rowOrder":3}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "TASK_ROW_ORDER_TAKEN")

	rec = doJSON(t, e, http.MethodPatch, "/api/matrices/"+matrixID+"/tasks/3", `{"name":"Plan release"}`)
	wantStatus(t, rec, http.StatusOK)
	snapshot = decodeView(t, rec)
	if snapshot.Tasks[0].Name != "Plan release" {
		t.Fatalf("task = %+v", snapshot.Tasks[0])
	}

	rec = doJSON(t, e, http.MethodPatch, "/api/matrices/"+matrixID+"/tasks/nope", `{"name":"Plan"}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "PARAM_INVALID")

	rec = doJSON(t, e, http.MethodDelete, "/api/matrices/"+matrixID+"/tasks/3", "")
	wantStatus(t, rec, http.StatusOK)
	snapshot = decodeView(t, rec)
	if len(snapshot.Tasks) != 0 {
		t.Fatalf("tasks = %+v, want empty", snapshot.Tasks)
	}
}

func TestColumnEndpoints(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)
	matrixID := createMatrixForTest(t, e)

	rec := doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/columns", `{"participant":{"type":"productOwner","id":"user-po"}}`)
	wantStatus(t, rec, http.StatusCreated)
	snapshot := decodeView(t, rec)
	if len(snapshot.Participants) != 1 || snapshot.Participants[0].RoleLabel != "Product Owner" {
		t.Fatalf("participants = %+v", snapshot.Participants)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/columns", `{"participant":{"type":"productOwner","id":"user-po"}}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "PARTICIPANT_COLUMN_DUPLICATE")

	rec = doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/columns", `{"participant":{"type":"ghost","id":"x"}}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "PARTICIPANT_REF_INVALID")

	rec = doJSON(t, e, http.MethodDelete, "/api/matrices/"+matrixID+"/columns/po:user-po", "")
	wantStatus(t, rec, http.StatusOK)
	snapshot = decodeView(t, rec)
	if len(snapshot.Participants) != 0 {
		t.Fatalf("participants = %+v, want empty", snapshot.Participants)
	}
}

func TestAssignmentEndpointValidation(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)
	matrixID := createMatrixForTest(t, e)
	wantStatus(t, doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/tasks", `{"name":"Plan"}`), http.StatusCreated)

	rec := doJSON(t, e, http.MethodPut, "/api/matrices/"+matrixID+"/tasks/0/assignments", `{"participant":{"type":"member","id":"tm-1"},"role":"R"}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "ASSIGNMENT_COLUMN_MISSING")

	wantStatus(t, doJSON(t, e, http.MethodPost, "/api/matrices/"+matrixID+"/columns", `{"participant":{"type":"member","id":"tm-1"}}`), http.StatusCreated)

	rec = doJSON(t, e, http.MethodPut, "/api/matrices/"+matrixID+"/tasks/0/assignments", `{"participant":{"type":"member","id":"tm-1"},"role":"X"}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "ROLE_INVALID")

	// Empty role clears the cell, even when it is already empty.
	rec = doJSON(t, e, http.MethodPut, "/api/matrices/"+matrixID+"/tasks/0/assignments", `{"participant":{"type":"member","id":"tm-1"},"role":""}`)
	wantStatus(t, rec, http.StatusOK)
}

func TestApproverEndpointValidation(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)
	matrixID := createMatrixForTest(t, e)

	rec := doJSON(t, e, http.MethodPut, "/api/matrices/"+matrixID+"/approver", `{"userId":"tm-1"}`)
	wantStatus(t, rec, http.StatusBadRequest)
	wantErrorCode(t, rec, "APPROVER_INELIGIBLE")
}

func TestListMatricesEndpoint(t *testing.T) {
	e := newTestAPI(t)
	seedDirectory(t, e)
	createMatrixForTest(t, e)
	createMatrixForTest(t, e)

	rec := doJSON(t, e, http.MethodGet, "/api/projects/proj-1/matrices", "")
	wantStatus(t, rec, http.StatusOK)
	var resp listMatricesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Matrices) != 2 {
		t.Fatalf("matrices len = %d, want 2", len(resp.Matrices))
	}
}

func TestHealthz(t *testing.T) {
	e := newTestAPI(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	wantStatus(t, rec, http.StatusOK)
}
