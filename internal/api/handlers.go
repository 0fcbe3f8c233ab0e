// Package api exposes the risk engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

// RiskService is the engine surface the handlers need
type RiskService interface {
	Ingest(ctx context.Context, collection string, records json.RawMessage) (int, error)
	ComputeFeatures(ctx context.Context, grantID string, params *domain.FeatureRequest) (*domain.FeatureSet, error)
	GetFeatures(ctx context.Context, grantID string) (*domain.FeatureSet, error)
	ApplyRules(ctx context.Context, grantID string) (*domain.RuleEvaluation, error)
	Score(ctx context.Context, grantID string) (*domain.Score, error)
	ResolveEntities(ctx context.Context, partyIDs []string) ([]domain.EntityMapping, error)
	GetAlert(ctx context.Context, grantID string) (*domain.Alert, error)
	RecentAlerts(ctx context.Context, limit int) ([]*domain.Alert, error)
	Triage(ctx context.Context, grantID string, req domain.TriageRequest, analystID string) (*domain.TriageDecision, error)
	MonitoringStatus(ctx context.Context) (*domain.MonitoringStatus, error)
	Ping(ctx context.Context) error
}

// Handler serves the risk API
type Handler struct {
	svc      RiskService
	verifier *TokenVerifier
	log      *logger.Logger
}

// NewHandler creates a handler. A nil verifier leaves triage unauthenticated.
func NewHandler(svc RiskService, verifier *TokenVerifier, log *logger.Logger) *Handler {
	return &Handler{svc: svc, verifier: verifier, log: log.Named("api")}
}

// Register mounts every route on e
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.health)

	e.POST("/ingest/data", h.ingest)

	e.POST("/features/:grant_id", h.computeFeatures)
	e.GET("/features/:grant_id", h.getFeatures)
	e.POST("/rules/:grant_id", h.applyRules)
	e.POST("/score/:grant_id", h.score)

	e.POST("/entity/resolve", h.resolveEntities)

	e.GET("/alerts/today", h.alertsToday)
	e.GET("/alerts/:grant_id", h.getAlert)
	e.POST("/alerts/triage/:grant_id", h.triage, RequireAnalyst(h.verifier))

	e.GET("/monitoring/status", h.monitoringStatus)
}

type ingestRequest struct {
	DataType string          `json:"data_type"`
	Records  json.RawMessage `json:"records"`
}

type ingestResponse struct {
	Message       string `json:"message"`
	IngestedCount int    `json:"ingested_count"`
}

func (h *Handler) ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	n, err := h.svc.Ingest(c.Request().Context(), req.DataType, req.Records)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ingestResponse{Message: "Ingestion successful", IngestedCount: n})
}

type featureResponse struct {
	GrantID          string               `json:"grant_id"`
	ComputedAt       time.Time            `json:"computed_at"`
	ComputedFeatures domain.Features      `json:"computed_features"`
	Meta             domain.FeatureParams `json:"meta"`
}

func (h *Handler) computeFeatures(c echo.Context) error {
	var req domain.FeatureRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	fs, err := h.svc.ComputeFeatures(c.Request().Context(), c.Param("grant_id"), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, featureResponse{
		GrantID:          fs.GrantID,
		ComputedAt:       fs.ComputedAt,
		ComputedFeatures: fs.Features,
		Meta:             fs.Meta,
	})
}

func (h *Handler) getFeatures(c echo.Context) error {
	fs, err := h.svc.GetFeatures(c.Request().Context(), c.Param("grant_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, fs)
}

func (h *Handler) applyRules(c echo.Context) error {
	eval, err := h.svc.ApplyRules(c.Request().Context(), c.Param("grant_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, eval)
}

func (h *Handler) score(c echo.Context) error {
	score, err := h.svc.Score(c.Request().Context(), c.Param("grant_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

type resolveRequest struct {
	PartyIDs []string `json:"party_ids"`
}

type resolveResponse struct {
	Mappings []domain.EntityMapping `json:"mappings"`
}

func (h *Handler) resolveEntities(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	mappings, err := h.svc.ResolveEntities(c.Request().Context(), req.PartyIDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resolveResponse{Mappings: mappings})
}

func (h *Handler) getAlert(c echo.Context) error {
	alert, err := h.svc.GetAlert(c.Request().Context(), c.Param("grant_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, alert)
}

type alertsResponse struct {
	Alerts []*domain.Alert `json:"alerts"`
}

func (h *Handler) alertsToday(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = n
	}

	alerts, err := h.svc.RecentAlerts(c.Request().Context(), limit)
	if err != nil {
		return h.fail(c, err)
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	return c.JSON(http.StatusOK, alertsResponse{Alerts: alerts})
}

type triageResponse struct {
	Message string                 `json:"message"`
	Triage  *domain.TriageDecision `json:"triage"`
}

func (h *Handler) triage(c echo.Context) error {
	var req domain.TriageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	decision, err := h.svc.Triage(c.Request().Context(), c.Param("grant_id"), req, analystID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, triageResponse{Message: "Disposition updated", Triage: decision})
}

func (h *Handler) monitoringStatus(c echo.Context) error {
	status, err := h.svc.MonitoringStatus(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) health(c echo.Context) error {
	if err := h.svc.Ping(c.Request().Context()); err != nil {
		h.log.WithContext(c.Request().Context()).Warn("health check failed", logger.ErrorField(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps engine errors onto HTTP statuses. Internal details are logged,
// never returned.
func (h *Handler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusRequestTimeout, "request cancelled")
	default:
		h.log.WithContext(c.Request().Context()).Error("request failed",
			logger.StringField("path", c.Path()),
			logger.ErrorField(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
