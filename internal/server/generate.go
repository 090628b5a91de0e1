package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/simplexity/internal/helpers"
	"github.com/mohammad-safakhou/simplexity/internal/stream"
	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/mohammad-safakhou/simplexity/provider"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type GenerateHandler struct {
	LLM              provider.Provider
	MaxTokens        int
	SuggestMaxTokens int
	Logger           *zap.Logger
	Tracer           trace.Tracer
	Metrics          *Metrics
}

func (h *GenerateHandler) Register(g *echo.Group) {
	g.POST("/generate", h.generate)
	g.POST("/suggest-questions", h.suggest)
}

func (h *GenerateHandler) generate(c echo.Context) error {
	start := time.Now()
	defer h.Metrics.observe(phaseGenerate, start)

	var req models.GenerateRequest
	if err := c.Bind(&req); err != nil {
		h.Metrics.failure(phaseGenerate, "bad_request")
		return echo.NewHTTPError(http.StatusBadRequest, "Query is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		h.Metrics.failure(phaseGenerate, "bad_request")
		return echo.NewHTTPError(http.StatusBadRequest, "Query is required")
	}
	if err := c.Validate(&req); err != nil {
		h.Metrics.failure(phaseGenerate, "bad_request")
		return echo.NewHTTPError(http.StatusBadRequest, "Sources are required")
	}
	if h.LLM == nil {
		h.Metrics.failure(phaseGenerate, "not_configured")
		return echo.NewHTTPError(http.StatusInternalServerError, "llm provider not configured")
	}

	ctx, span := h.Tracer.Start(c.Request().Context(), "generate.stream")
	defer span.End()
	span.SetAttributes(attribute.Int("generate.sources", len(req.Sources)), attribute.Int("generate.history", len(req.ConversationHistory)))

	s, err := h.LLM.Stream(ctx, provider.Prompt{
		System:    answerSystemPrompt,
		User:      answerUserPrompt(req.Query, req.Sources, req.ConversationHistory),
		MaxTokens: h.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open stream failed")
		h.Metrics.failure(phaseGenerate, "upstream")
		return echo.NewHTTPError(http.StatusBadGateway, "AI API request failed").SetInternal(err)
	}
	defer s.Close()

	w := stream.PrepareResponse(c.Response())
	var answer strings.Builder
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream failed")
			h.Metrics.failure(phaseGenerate, "upstream_mid_stream")
			h.Logger.Warn("model stream failed after first byte", zap.Error(err), zap.Int("chars", answer.Len()), zap.Int("events", w.Written()))
			stream.Abort()
		}
		answer.WriteString(delta)
		if err := w.Text(delta); err != nil {
			h.Logger.Debug("client went away during generate stream", zap.Error(err))
			return nil
		}
		h.Metrics.event(phaseGenerate, string(models.EventText))
	}

	citations := helpers.ExtractCitations(answer.String(), req.Sources)
	if err := w.Citations(citations); err != nil {
		return nil
	}
	h.Metrics.event(phaseGenerate, string(models.EventCitations))
	if err := w.Done(); err != nil {
		return nil
	}
	h.Metrics.event(phaseGenerate, string(models.EventDone))
	span.SetAttributes(attribute.Int("generate.citations", len(citations)), attribute.Int("generate.events", w.Written()))
	return nil
}

// suggest answers follow-up questions as plain JSON. Any failure yields a 500
// with an empty list so callers can always decode the body.
func (h *GenerateHandler) suggest(c echo.Context) error {
	start := time.Now()
	defer h.Metrics.observe(phaseSuggest, start)

	empty := models.SuggestResponse{Questions: []string{}}
	var req models.SuggestRequest
	if err := c.Bind(&req); err != nil {
		h.Metrics.failure(phaseSuggest, "bad_request")
		return c.JSON(http.StatusInternalServerError, empty)
	}
	if h.LLM == nil {
		h.Metrics.failure(phaseSuggest, "not_configured")
		return c.JSON(http.StatusInternalServerError, empty)
	}

	ctx, span := h.Tracer.Start(c.Request().Context(), "suggest.complete")
	defer span.End()
	text, err := h.LLM.Complete(ctx, provider.Prompt{User: suggestPrompt(req), MaxTokens: h.SuggestMaxTokens})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete failed")
		h.Metrics.failure(phaseSuggest, "upstream")
		h.Logger.Warn("suggest questions failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, empty)
	}
	return c.JSON(http.StatusOK, models.SuggestResponse{Questions: helpers.FilterQuestions(text, helpers.DefaultMaxQuestions)})
}
