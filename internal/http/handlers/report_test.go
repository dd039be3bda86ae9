package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/reportgen"
	"github.com/yungbote/research-reports/internal/services"
)

type stubReports struct {
	services.ReportService
	report    *reports.Report
	err       error
	gotUpdate services.UpdateReportInput
	gotPrompt string
}

func (s *stubReports) Create(ctx context.Context, in services.CreateReportInput) (*reports.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &reports.Report{ID: uuid.New(), ParentID: in.ParentID, Name: in.Name, Status: reports.StatusConfiguring}, nil
}

func (s *stubReports) Get(ctx context.Context, id uuid.UUID) (*reports.Report, error) {
	return s.report, s.err
}

func (s *stubReports) List(ctx context.Context, parentID uuid.UUID) ([]*reports.Report, error) {
	return []*reports.Report{s.report}, s.err
}

func (s *stubReports) Update(ctx context.Context, id uuid.UUID, in services.UpdateReportInput) (*reports.Report, error) {
	s.gotUpdate = in
	return s.report, s.err
}

func (s *stubReports) Generate(ctx context.Context, id uuid.UUID, in services.GenerateReportInput) (*reports.Report, error) {
	return s.report, s.err
}

func (s *stubReports) AnalyzePrompt(ctx context.Context, id uuid.UUID, prompt string) (*services.PromptAnalysis, error) {
	s.gotPrompt = prompt
	if s.err != nil {
		return nil, s.err
	}
	return &services.PromptAnalysis{Variations: []reports.Variation{{Text: "t", Focus: "f"}}}, nil
}

func (s *stubReports) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.err == nil, s.err
}

func (s *stubReports) Delete(ctx context.Context, id uuid.UUID) error { return s.err }

func (s *stubReports) RelatedDocuments(ctx context.Context, id uuid.UUID) ([]services.RelatedDocument, error) {
	return []services.RelatedDocument{{DocumentRef: "d1", RelevanceScore: 0.9}}, s.err
}

func newTestRouter(svc services.ReportService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewReportHandler(logger.Nop(), svc, nil)
	r := gin.New()
	r.POST("/api/reports", h.CreateReport)
	r.GET("/api/reports", h.ListReports)
	r.GET("/api/reports/:id", h.GetReport)
	r.PATCH("/api/reports/:id", h.UpdateReport)
	r.DELETE("/api/reports/:id", h.DeleteReport)
	r.POST("/api/reports/:id/analyze", h.AnalyzePrompt)
	r.POST("/api/reports/:id/generate", h.GenerateReport)
	r.POST("/api/reports/:id/cancel", h.CancelReport)
	r.GET("/api/reports/:id/related-documents", h.RelatedDocuments)
	r.GET("/api/reports/:id/events", h.StreamEvents)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestCreateReportReturnsCreated(t *testing.T) {
	r := newTestRouter(&stubReports{})
	parent := uuid.New()
	rec := do(r, http.MethodPost, "/api/reports", fmt.Sprintf(`{"parent_id":%q,"collection_id":"support","name":"Q1"}`, parent))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Report reports.Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, parent, body.Report.ParentID)
	assert.Equal(t, reports.StatusConfiguring, body.Report.Status)
}

func TestReportErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", reportgen.ErrReportNotFound, http.StatusNotFound, "report_not_found"},
		{"config", fmt.Errorf("%w: outline empty", reportgen.ErrInvalidConfiguration), http.StatusBadRequest, "invalid_configuration"},
		{"in progress", reportgen.ErrGenerationInProgress, http.StatusConflict, "generation_in_progress"},
		{"cancelled", reportgen.ErrGenerationCancelled, http.StatusConflict, "generation_cancelled"},
		{"persistence", reportgen.Persistence("finish generation", fmt.Errorf("connection reset")), http.StatusServiceUnavailable, "persistence_unavailable"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&stubReports{err: tc.err})
			rec := do(r, http.MethodPost, "/api/reports/"+uuid.NewString()+"/generate", "")
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestGenerateReturnsErroredReportAsOK(t *testing.T) {
	r := newTestRouter(&stubReports{report: &reports.Report{ID: uuid.New(), Status: reports.StatusError, Error: "report synthesis failed"}})
	rec := do(r, http.MethodPost, "/api/reports/"+uuid.NewString()+"/generate", `{"name":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
	assert.Contains(t, rec.Body.String(), `"content":null`)
}

func TestAnalyzePromptMapsVariationFormat(t *testing.T) {
	svc := &stubReports{err: reportgen.ErrInvalidVariationFormat}
	r := newTestRouter(svc)
	rec := do(r, http.MethodPost, "/api/reports/"+uuid.NewString()+"/analyze", `{"custom_prompt":"coverage of support tickets"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "coverage of support tickets", svc.gotPrompt)

	svc.err = fmt.Errorf("prompt analysis call failed: 500")
	rec = do(r, http.MethodPost, "/api/reports/"+uuid.NewString()+"/analyze", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "prompt_analysis_failed", errorCode(t, rec))
}

func TestUpdateReportPassesOnlyProvidedFields(t *testing.T) {
	svc := &stubReports{report: &reports.Report{ID: uuid.New()}}
	r := newTestRouter(svc)
	rec := do(r, http.MethodPatch, "/api/reports/"+uuid.NewString(), `{"name":"Renamed","section_outline":[{"title":"A","focus_areas":"oops"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotUpdate.Name)
	assert.Equal(t, "Renamed", *svc.gotUpdate.Name)
	assert.Nil(t, svc.gotUpdate.CustomPrompt)
	require.NotNil(t, svc.gotUpdate.SectionOutline)
	outline := *svc.gotUpdate.SectionOutline
	require.Len(t, outline, 1)
	assert.Empty(t, outline[0].FocusAreas)
}

func TestInvalidIDsAreBadRequests(t *testing.T) {
	r := newTestRouter(&stubReports{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/reports/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/reports?parent_id=nope", "").Code)
}

func TestListCancelDeleteAndRelated(t *testing.T) {
	r := newTestRouter(&stubReports{report: &reports.Report{ID: uuid.New()}})

	rec := do(r, http.MethodGet, "/api/reports?parentId="+uuid.NewString(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reports"`)

	rec = do(r, http.MethodPost, "/api/reports/"+uuid.NewString()+"/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/reports/"+uuid.NewString(), "").Code)

	rec = do(r, http.MethodGet, "/api/reports/"+uuid.NewString()+"/related-documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"document_ref":"d1"`)

	rec = do(r, http.MethodGet, "/api/reports/"+uuid.NewString()+"/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
