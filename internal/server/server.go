package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"road-report-service/internal/domain"
	"road-report-service/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type TimelineProvider interface {
	Timeline(ctx context.Context, targetType domain.TargetType, targetID string) ([]domain.TimelineItem, error)
}

type Server struct {
	reportService service.ReportServiceInterface
	timeline      TimelineProvider
	db            Pinger
}

func NewServer(reportService service.ReportServiceInterface, timeline TimelineProvider, db Pinger) *Server {
	return &Server{
		reportService: reportService,
		timeline:      timeline,
		db:            db,
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.HealthCheck)

	api := e.Group("/api")

	reports := api.Group("/reports")
	reports.POST("", s.CreateReport)
	reports.GET("", s.ListReports)
	reports.GET("/:id", s.GetReport)
	reports.PATCH("/:id", s.UpdateReport)
	reports.PATCH("/:id/classify", s.ClassifyReport)
	reports.GET("/:id/classifications", s.ListClassifications)
	reports.GET("/:id/timeline", s.GetReportTimeline)
	reports.GET("/:id/transitions", s.GetAllowedTransitions)

	api.GET("/users/:id/timeline", s.GetUserTimeline)
	api.GET("/audit/:targetType/:targetId", s.GetAuditTrail)
}

func (s *Server) HealthCheck(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		log.WithField("error", err).Error("Health check failed: database is down")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection error",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// actorFromRequest reads the caller identity set by the upstream gateway.
func actorFromRequest(c echo.Context) (domain.Actor, error) {
	role, err := domain.ParseRole(c.Request().Header.Get(HeaderUserRole))
	if err != nil {
		return domain.Actor{}, err
	}

	actor := domain.Actor{Role: role}
	if id := strings.TrimSpace(c.Request().Header.Get(HeaderUserID)); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return domain.Actor{}, domain.NewValidationError("X-User-ID", "must be a UUID")
		}
		actor.UserID = &id
	}
	return actor, nil
}

func handleReportError(err error) (int, string, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error", ve.Error()
	case errors.Is(err, domain.ErrReportNotFound):
		return http.StatusNotFound, "not_found", "report not found"
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "user not found"
	case errors.Is(err, domain.ErrTransitionNotAllowed):
		return http.StatusConflict, "transition_not_allowed", err.Error()
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict, "concurrent_update", "report was modified concurrently, retry the request"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, domain.ErrAuditWriteFailure):
		return http.StatusInternalServerError, "audit_write_failure", "change could not be recorded and was rolled back"
	default:
		return http.StatusInternalServerError, "internal", "internal server error"
	}
}

func respondError(c echo.Context, err error) error {
	status, code, message := handleReportError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}
	return c.JSON(status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// RequestValidator adapts go-playground/validator to echo and reports
// failures as domain validation errors keyed by JSON field name.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validator: v}
}

func (v *RequestValidator) Validate(i interface{}) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Field(), "failed %q validation", fe.Tag())
	}
	return domain.NewValidationError("", "%v", err)
}
