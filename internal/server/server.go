package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/mohammad-safakhou/simplexity/provider"
	"github.com/mohammad-safakhou/simplexity/tools/web_search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer needs. Search and LLM may be nil,
// in which case the matching endpoints answer 500.
type Deps struct {
	Server   config.ServerConfig
	Search   config.SearchConfig
	LLM      config.LLMConfig
	Searcher web_search.WebSearcher
	Provider provider.Provider
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Registry *prometheus.Registry
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error { return rv.v.Struct(i) }

func newValidator() *requestValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &requestValidator{v: v}
}

// New builds the echo instance with every route registered.
func New(d Deps) (*echo.Echo, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("simplexity/server")
	}
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if d.Registry != nil {
		reg, gatherer = d.Registry, d.Registry
	}
	metrics, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	httpLogger := d.Logger.Named("http")
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Info("request failed",
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", c.RealIP()),
			zap.Error(err),
		)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	origins := d.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Server.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	sh := &SearchHandler{
		Searcher:   d.Searcher,
		MaxResults: d.Search.MaxResults,
		Timeout:    d.Search.Timeout,
		Logger:     d.Logger.Named("search"),
		Tracer:     d.Tracer,
		Metrics:    metrics,
	}
	sh.Register(api)
	gh := &GenerateHandler{
		LLM:              d.Provider,
		MaxTokens:        d.LLM.MaxTokens,
		SuggestMaxTokens: d.LLM.SuggestMaxTokens,
		Logger:           d.Logger.Named("generate"),
		Tracer:           d.Tracer,
		Metrics:          metrics,
	}
	gh.Register(api)
	return e, nil
}
