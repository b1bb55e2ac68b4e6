package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/observability"
	"apprentice-gateway/internal/router"
	"apprentice-gateway/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 15 * time.Second
	idleTimeout         = 120 * time.Second
	writeTimeoutMargin  = 5 * time.Second
)

type Server struct {
	cfg     config.Config
	router  *router.Router
	metrics *observability.Metrics
	logger  *slog.Logger
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}
	if metrics == nil {
		return nil, errors.New("metrics must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler(logger)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(echo.WrapMiddleware(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     allowedMethods,
		AllowedHeaders:     allowedHeaders(cfg.Server.CredentialHeader),
		OptionsPassthrough: true,
	})))

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		metrics: metrics,
		logger:  logger,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the configured echo instance, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.printStartupBanner()
	s.logger.Info("starting server", "addr", s.address, "provider", s.router.Provider())
	if !s.router.HasDeploymentSecret() {
		s.logger.Warn("no deployment credential configured; requests must supply their own key",
			"header", s.cfg.Server.CredentialHeader)
	}

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: s.cfg.Server.RequestTimeout + writeTimeoutMargin,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	s.app.Match([]string{http.MethodPost, http.MethodOptions}, s.cfg.Server.Route, s.handleChat)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":                "ok",
		"provider":              s.router.Provider(),
		"credential_configured": s.router.HasDeploymentSecret(),
	})
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(c echo.Context) error {
	if c.Request().Method == http.MethodOptions {
		s.writeCORSHeaders(c)
		return c.NoContent(http.StatusOK)
	}

	req := c.Request()
	defer req.Body.Close()

	body, err := translator.DecodeInboundBody(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if errors.Is(err, translator.ErrBodyTooLarge) {
		return requestError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "Request body too large",
			Details: err.Error(),
		}
	}
	if err != nil {
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "Failed to parse request body",
			Details: err.Error(),
		}
	}

	reply, err := s.router.Reply(req.Context(), router.Request{
		Body:             body,
		CredentialHeader: req.Header.Get(s.cfg.Server.CredentialHeader),
		Origin:           req.Header.Get(echo.HeaderOrigin),
	})
	if err != nil {
		if errors.Is(err, translator.ErrEmptyMessage) {
			return requestError{Status: http.StatusBadRequest, Message: "Missing message"}
		}
		return err
	}

	return c.JSON(http.StatusOK, chatResponse{Reply: reply.Text})
}

func (s *Server) printStartupBanner() {
	host := "127.0.0.1"
	port := s.cfg.Server.Port
	route := s.cfg.Server.Route
	fmt.Println()
	fmt.Println("apprentice-gateway ready")
	fmt.Printf("Listening on http://%s:%d (provider: %s)\n", host, port, s.router.Provider())
	fmt.Println("Endpoints:")
	fmt.Printf("  POST %s\n", route)
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Printf("Example:\n  curl http://%s:%d%s -H 'Content-Type: application/json' -d '{\"message\":\"hello\"}'\n\n", host, port, route)
}
