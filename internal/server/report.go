package server

import (
	"io"
	"net/http"
	"strconv"

	"road-report-service/internal/domain"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const maxPatchBodyBytes = 1 << 20

func (s *Server) CreateReport(c echo.Context) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return respondError(c, err)
	}

	var req domain.CreateReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
			"code":  "validation_error",
		})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	report, err := s.reportService.CreateReport(c.Request().Context(), req, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, report)
}

func (s *Server) ListReports(c echo.Context) error {
	filter := domain.ReportFilter{Limit: 20}

	if v := c.QueryParam("status"); v != "" {
		status, err := domain.ParseStatus(v)
		if err != nil {
			return respondError(c, err)
		}
		filter.Status = &status
	}
	if v := c.QueryParam("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	reports, err := s.reportService.ListReports(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"reports": reports,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (s *Server) GetReport(c echo.Context) error {
	report, err := s.reportService.GetReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) UpdateReport(c echo.Context) error {
	id := c.Param("id")
	actor, err := actorFromRequest(c)
	if err != nil {
		return respondError(c, err)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPatchBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
			"code":  "validation_error",
		})
	}
	patch, err := domain.ParseReportPatch(body)
	if err != nil {
		return respondError(c, err)
	}

	report, err := s.reportService.UpdateReport(c.Request().Context(), id, patch, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) ClassifyReport(c echo.Context) error {
	id := c.Param("id")
	actor, err := actorFromRequest(c)
	if err != nil {
		return respondError(c, err)
	}

	var req domain.ClassifyReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
			"code":  "validation_error",
		})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	report, err := s.reportService.ClassifyReport(c.Request().Context(), id, req, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) ListClassifications(c echo.Context) error {
	records, err := s.reportService.ListClassifications(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"classifications": records,
	})
}

func (s *Server) GetReportTimeline(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.reportService.GetReport(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}

	items, err := s.timeline.Timeline(c.Request().Context(), domain.TargetReport, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"report_id": id,
		"timeline":  items,
	})
}

func (s *Server) GetUserTimeline(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return respondError(c, domain.NewValidationError("id", "must be a UUID"))
	}

	items, err := s.timeline.Timeline(c.Request().Context(), domain.TargetUser, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id":  id,
		"timeline": items,
	})
}

func (s *Server) GetAllowedTransitions(c echo.Context) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return respondError(c, err)
	}

	statuses, err := s.reportService.AllowedTransitions(c.Request().Context(), c.Param("id"), actor.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"role":        actor.Role,
		"transitions": statuses,
	})
}

func (s *Server) GetAuditTrail(c echo.Context) error {
	targetType, err := domain.ParseTargetType(c.Param("targetType"))
	if err != nil {
		return respondError(c, err)
	}
	order, err := domain.ParseAuditOrder(c.QueryParam("order"))
	if err != nil {
		return respondError(c, err)
	}

	targetID := c.Param("targetId")
	entries, err := s.reportService.AuditTrail(c.Request().Context(), targetType, targetID, order)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"target_type": targetType,
			"target_id":   targetID,
		}).Warn("Failed to load audit trail")
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}
