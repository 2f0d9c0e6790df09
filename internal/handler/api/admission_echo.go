package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	xhttp "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/http"
	xlogger "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/logger"
)

type Decider interface {
	Decide(ctx context.Context, req models.DecisionRequest) (*models.DecisionResponse, error)
}

type OutcomeService interface {
	Record(ctx context.Context, req models.OutcomeRequest) (*models.IntradayStats, error)
	Stats(ctx context.Context, ticker, indicator string) (*models.IntradayStats, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// AdmissionEchoHandler serves the decision, outcome and stats endpoints.
type AdmissionEchoHandler struct {
	logger   *xlogger.Logger
	decider  Decider
	outcomes OutcomeService
	checks   map[string]HealthCheck
	timeout  time.Duration
}

func NewAdmissionEchoHandler(logger *xlogger.Logger, decider Decider, outcomes OutcomeService, timeout time.Duration) *AdmissionEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AdmissionEchoHandler{
		logger:   logger,
		decider:  decider,
		outcomes: outcomes,
		checks:   map[string]HealthCheck{},
		timeout:  timeout,
	}
}

// AddHealthCheck registers a dependency probe for /healthz.
func (h *AdmissionEchoHandler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *AdmissionEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/decisions", h.Decide)
	g.POST("/outcomes", h.RecordOutcome)
	g.GET("/stats", h.Stats)
	e.GET("/healthz", h.Health)
}

func (h *AdmissionEchoHandler) Decide(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	res, err := h.decider.Decide(ctx, *req)
	if err != nil {
		return h.fail(c, "decision", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AdmissionEchoHandler) RecordOutcome(c echo.Context) error {
	req := &models.OutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats, err := h.outcomes.Record(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "outcome", err)
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *AdmissionEchoHandler) Stats(c echo.Context) error {
	q := &models.StatsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats, err := h.outcomes.Stats(c.Request().Context(), q.Ticker, q.Indicator)
	if err != nil {
		return h.fail(c, "stats", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, stats)
}

func (h *AdmissionEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, failed)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *AdmissionEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrStatsNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	}
	return xhttp.FromError(err)
}
