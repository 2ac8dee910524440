package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"bioexplorer/internal/config"
	"bioexplorer/internal/metrics"
	"bioexplorer/internal/models"
	"bioexplorer/internal/prompt"
	"bioexplorer/internal/rag"
)

// Answerer is the query pipeline behind the HTTP API.
type Answerer interface {
	Answer(ctx context.Context, question, role string) (*models.QueryResponse, error)
}

// indexStatus is implemented by answerers that know whether their vector
// index is loaded.
type indexStatus interface {
	IndexAvailable() bool
}

type Server struct {
	echo    *echo.Echo
	rag     Answerer
	config  config.ServerConfig
	metrics *metrics.Metrics
}

type queryRequest struct {
	Query    string `json:"query"`
	Question string `json:"question"`
	Role     string `json:"role"`
}

type queryResponse struct {
	Query    string                `json:"query"`
	Role     string                `json:"role"`
	Response *models.QueryResponse `json:"response"`
}

func New(answerer Answerer, serverConfig config.ServerConfig, m *metrics.Metrics) *Server {
	s := &Server{
		echo:    echo.New(),
		rag:     answerer,
		config:  serverConfig,
		metrics: m,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: serverConfig.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept},
	}))

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.GET("/hello", s.hello)
	api.POST("/query", s.query)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	return s
}

// errorHandler renders every error as {"error": message}.
func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}

	req := c.Request()
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", code).Str("method", req.Method).Str("path", req.URL.Path).Msg("Request failed")

	if !c.Response().Committed {
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then drains in-flight requests for
// at most the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("Server listening")
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout())
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	body := map[string]string{"status": "healthy"}
	if st, ok := s.rag.(indexStatus); ok {
		body["index"] = "available"
		if !st.IndexAvailable() {
			body["index"] = "unavailable"
		}
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) hello(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Hello from the space biology knowledge engine!"})
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	question := req.Query
	if question == "" {
		question = req.Question
	}
	if strings.TrimSpace(question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No query provided")
	}

	ctx := c.Request().Context()
	if timeout := s.config.QueryTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := s.rag.Answer(ctx, question, req.Role)
	if err != nil {
		var genErr *rag.GenerationError
		switch {
		case errors.Is(err, rag.ErrEmptyQuestion):
			return echo.NewHTTPError(http.StatusBadRequest, "No query provided").SetInternal(err)
		case errors.As(err, &genErr):
			return echo.NewHTTPError(http.StatusBadGateway, "language model request failed").SetInternal(err)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to answer query").SetInternal(err)
		}
	}

	return c.JSON(http.StatusOK, queryResponse{
		Query:    question,
		Role:     prompt.ParseRole(req.Role).String(),
		Response: resp,
	})
}
