package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/simplexity/internal/helpers"
	"github.com/mohammad-safakhou/simplexity/internal/stream"
	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/mohammad-safakhou/simplexity/tools/web_search"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultMaxResults = 10

type SearchHandler struct {
	Searcher   web_search.WebSearcher
	MaxResults int
	Timeout    time.Duration
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Metrics    *Metrics
}

func (h *SearchHandler) Register(g *echo.Group) {
	g.POST("/search", h.search)
}

// search streams one result event per web result, then done. Every failure
// before the first byte is reported with a status code.
func (h *SearchHandler) search(c echo.Context) error {
	start := time.Now()
	defer h.Metrics.observe(phaseSearch, start)

	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		h.Metrics.failure(phaseSearch, "bad_request")
		return echo.NewHTTPError(http.StatusBadRequest, "Query is required")
	}
	if err := c.Validate(&req); err != nil {
		h.Metrics.failure(phaseSearch, "bad_request")
		return echo.NewHTTPError(http.StatusBadRequest, "Query is required")
	}
	if h.Searcher == nil {
		h.Metrics.failure(phaseSearch, "not_configured")
		return echo.NewHTTPError(http.StatusInternalServerError, "search provider not configured")
	}

	ctx, span := h.Tracer.Start(c.Request().Context(), "search.discover")
	defer span.End()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	k := h.MaxResults
	if k <= 0 {
		k = defaultMaxResults
	}
	results, err := h.Searcher.Discover(ctx, req.Query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discover failed")
		h.Metrics.failure(phaseSearch, "upstream")
		return echo.NewHTTPError(http.StatusBadGateway, "Search API request failed").SetInternal(err)
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))

	w := stream.PrepareResponse(c.Response())
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		key, err := helpers.LinkKey(r.Link)
		if err != nil {
			h.Logger.Debug("dropping result with unusable link", zap.String("link", r.Link), zap.Error(err))
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		r = helpers.CleanResult(r)
		if err := w.Result(r); err != nil {
			h.Logger.Debug("client went away during search stream", zap.Error(err))
			return nil
		}
		h.Metrics.event(phaseSearch, string(models.EventResult))
	}
	if err := w.Done(); err != nil {
		h.Logger.Debug("client went away before done", zap.Error(err))
		return nil
	}
	h.Metrics.event(phaseSearch, string(models.EventDone))
	span.SetAttributes(attribute.Int("search.events", w.Written()))
	return nil
}
