package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"road-report-service/internal/domain"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testReportID = "0d6f5a8e-5b1c-4c62-9a5e-2a1f3c4d5e60"
	testAdminID  = "5a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
)

type fakeReportService struct {
	report *domain.DamageReport
	err    error

	lastPatch    *domain.ReportPatch
	lastActor    domain.Actor
	lastFilter   domain.ReportFilter
	lastOrder    domain.AuditOrder
	lastClassify domain.ClassifyReportRequest
	created      domain.CreateReportRequest
}

func (f *fakeReportService) CreateReport(_ context.Context, req domain.CreateReportRequest, actor domain.Actor) (*domain.DamageReport, error) {
	f.created, f.lastActor = req, actor
	return f.report, f.err
}

func (f *fakeReportService) GetReport(context.Context, string) (*domain.DamageReport, error) {
	return f.report, f.err
}

func (f *fakeReportService) ListReports(_ context.Context, filter domain.ReportFilter) ([]domain.DamageReport, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []domain.DamageReport{*f.report}, nil
}

func (f *fakeReportService) UpdateReport(_ context.Context, _ string, patch *domain.ReportPatch, actor domain.Actor) (*domain.DamageReport, error) {
	f.lastPatch, f.lastActor = patch, actor
	return f.report, f.err
}

func (f *fakeReportService) ClassifyReport(_ context.Context, _ string, req domain.ClassifyReportRequest, actor domain.Actor) (*domain.DamageReport, error) {
	f.lastClassify, f.lastActor = req, actor
	return f.report, f.err
}

func (f *fakeReportService) ListClassifications(context.Context, string) ([]domain.ClassificationRecord, error) {
	return nil, f.err
}

func (f *fakeReportService) AllowedTransitions(_ context.Context, _ string, role domain.Role) ([]domain.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.AllowedTransitions(role, f.report.Status), nil
}

func (f *fakeReportService) AuditTrail(_ context.Context, _ domain.TargetType, _ string, order domain.AuditOrder) ([]domain.AuditEntry, error) {
	f.lastOrder = order
	return []domain.AuditEntry{}, f.err
}

type fakeTimeline struct {
	items      []domain.TimelineItem
	err        error
	targetType domain.TargetType
}

func (f *fakeTimeline) Timeline(_ context.Context, targetType domain.TargetType, _ string) ([]domain.TimelineItem, error) {
	f.targetType = targetType
	return f.items, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func newTestEcho(svc *fakeReportService, tl *fakeTimeline, db Pinger) *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	NewServer(svc, tl, db).RegisterRoutes(e)
	return e
}

func doRequest(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{HeaderUserRole: "admin", HeaderUserID: testAdminID}
}

func sampleReport(status domain.Status) *domain.DamageReport {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	return &domain.DamageReport{
		ID:         testReportID,
		Status:     status,
		Severity:   3,
		DamageType: domain.DamageTypePothole,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleReportError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.NewValidationError("severity", "out of range"), http.StatusBadRequest, "validation_error"},
		{"wrapped validation", fmt.Errorf("patch: %w", domain.NewValidationError("status", "bad")), http.StatusBadRequest, "validation_error"},
		{"report not found", domain.ErrReportNotFound, http.StatusNotFound, "not_found"},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound, "not_found"},
		{"transition", &domain.TransitionError{Role: domain.RoleFieldOfficer, From: domain.StatusNew, To: domain.StatusVerified}, http.StatusConflict, "transition_not_allowed"},
		{"concurrent", domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"audit", fmt.Errorf("%w: disk full", domain.ErrAuditWriteFailure), http.StatusInternalServerError, "audit_write_failure"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := handleReportError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	e := newTestEcho(&fakeReportService{}, &fakeTimeline{}, fakePinger{})
	rec := doRequest(e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	e = newTestEcho(&fakeReportService{}, &fakeTimeline{}, fakePinger{err: errors.New("down")})
	rec = doRequest(e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdateReport_PassesPatchAndActor(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusVerified)}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodPatch, "/api/reports/"+testReportID,
		`{"status":"verified","workflowData":{"progressPercent":10},"reason":"checked on site"}`, adminHeaders())

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastPatch)
	require.True(t, svc.lastPatch.Status.Set)
	assert.Equal(t, domain.StatusVerified, *svc.lastPatch.Status.Value)
	assert.True(t, svc.lastPatch.WorkflowData.Set)
	assert.Equal(t, "checked on site", *svc.lastPatch.Reason)
	assert.Equal(t, domain.RoleAdmin, svc.lastActor.Role)
	require.NotNil(t, svc.lastActor.UserID)
	assert.Equal(t, testAdminID, *svc.lastActor.UserID)
	assert.Equal(t, "verified", decodeBody(t, rec)["status"])
}

func TestUpdateReport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"transition not allowed", &domain.TransitionError{Role: domain.RoleAdmin, From: domain.StatusResolved, To: domain.StatusNew}, http.StatusConflict, "transition_not_allowed"},
		{"not found", domain.ErrReportNotFound, http.StatusNotFound, "not_found"},
		{"audit failure", domain.ErrAuditWriteFailure, http.StatusInternalServerError, "audit_write_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeReportService{err: tt.err}
			e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

			rec := doRequest(e, http.MethodPatch, "/api/reports/"+testReportID, `{"status":"new"}`, adminHeaders())

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody(t, rec)["code"])
		})
	}
}

func TestUpdateReport_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{"unknown status", `{"status":"closed"}`, adminHeaders()},
		{"malformed json", `{"status":`, adminHeaders()},
		{"missing role", `{"status":"verified"}`, map[string]string{}},
		{"unknown role", `{"status":"verified"}`, map[string]string{HeaderUserRole: "mayor"}},
		{"bad user id", `{"status":"verified"}`, map[string]string{HeaderUserRole: "admin", HeaderUserID: "not-a-uuid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeReportService{report: sampleReport(domain.StatusNew)}
			e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

			rec := doRequest(e, http.MethodPatch, "/api/reports/"+testReportID, tt.body, tt.headers)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeBody(t, rec)["code"])
			assert.Nil(t, svc.lastPatch)
		})
	}
}

func TestCreateReport(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusNew)}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodPost, "/api/reports",
		`{"severity":3,"damageType":"pothole","latitude":6.9,"longitude":79.8}`,
		map[string]string{HeaderUserRole: "citizen"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.DamageTypePothole, svc.created.DamageType)
	assert.Equal(t, domain.RoleCitizen, svc.lastActor.Role)
	assert.Nil(t, svc.lastActor.UserID)
}

func TestCreateReport_ValidationFailure(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusNew)}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodPost, "/api/reports",
		`{"severity":9,"damageType":"pothole"}`, map[string]string{HeaderUserRole: "citizen"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation_error", body["code"])
	assert.Contains(t, body["error"], "severity")
}

func TestClassifyReport(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusVerified)}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodPatch, "/api/reports/"+testReportID+"/classify",
		`{"roadClass":"b","reason":"provincial road"}`, adminHeaders())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b", svc.lastClassify.RoadClass)

	rec = doRequest(e, http.MethodPatch, "/api/reports/"+testReportID+"/classify", `{"roadClass":"Z"}`, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReports_ParsesQuery(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusInProgress)}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/reports?status=in_progress&limit=5&offset=10", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastFilter.Status)
	assert.Equal(t, domain.StatusInProgress, *svc.lastFilter.Status)
	assert.Equal(t, 5, svc.lastFilter.Limit)
	assert.Equal(t, 10, svc.lastFilter.Offset)

	rec = doRequest(e, http.MethodGet, "/api/reports?status=archived", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAllowedTransitions(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusVerified)}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/reports/"+testReportID+"/transitions", "",
		map[string]string{HeaderUserRole: "field_officer"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"in_progress"}, body["transitions"])
}

func TestGetReportTimeline(t *testing.T) {
	svc := &fakeReportService{report: sampleReport(domain.StatusVerified)}
	tl := &fakeTimeline{items: []domain.TimelineItem{
		{Kind: domain.TimelineCreated, Actor: domain.TimelineActor{Name: domain.ActorNameSystem}},
	}}
	e := newTestEcho(svc, tl, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/reports/"+testReportID+"/timeline", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TargetReport, tl.targetType)
	assert.Len(t, decodeBody(t, rec)["timeline"], 1)
}

func TestGetReportTimeline_NotFound(t *testing.T) {
	svc := &fakeReportService{err: domain.ErrReportNotFound}
	tl := &fakeTimeline{}
	e := newTestEcho(svc, tl, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/reports/"+testReportID+"/timeline", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, tl.targetType)
}

func TestGetUserTimeline(t *testing.T) {
	tl := &fakeTimeline{items: []domain.TimelineItem{}}
	e := newTestEcho(&fakeReportService{}, tl, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/users/"+testAdminID+"/timeline", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TargetUser, tl.targetType)
}

func TestGetUserTimeline_RejectsMalformedID(t *testing.T) {
	tl := &fakeTimeline{items: []domain.TimelineItem{}}
	e := newTestEcho(&fakeReportService{}, tl, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/users/not-a-uuid/timeline", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeBody(t, rec)["code"])
	assert.Empty(t, tl.targetType)
}

func TestGetAuditTrail(t *testing.T) {
	svc := &fakeReportService{}
	e := newTestEcho(svc, &fakeTimeline{}, fakePinger{})

	rec := doRequest(e, http.MethodGet, "/api/audit/report/"+testReportID+"?order=oldest_first", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OldestFirst, svc.lastOrder)

	rec = doRequest(e, http.MethodGet, "/api/audit/report/"+testReportID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.NewestFirst, svc.lastOrder)

	rec = doRequest(e, http.MethodGet, "/api/audit/spaceship/"+testReportID, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
