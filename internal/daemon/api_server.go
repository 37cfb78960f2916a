package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"scriptreel/internal/api"
	"scriptreel/internal/config"
	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

const requestIDHeader = "X-Request-ID"

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	svc    *api.PipelineService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		svc:    d.service,
	}
	srv.server = &http.Server{
		Handler:           srv.router(cfg.Paths.APIToken, cfg.Telemetry.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// router builds the gin engine. Every route lives under /api.
func (s *apiServer) router(token, serviceName string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if serviceName == "" {
		serviceName = "scriptreeld"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())
	r.Use(s.requestContext())

	group := r.Group("/api", authMiddleware(token))
	{
		group.GET("/status", s.handleStatus)
		group.GET("/logs", s.handleLogs)

		gens := group.Group("/generations")
		gens.POST("", s.handleStart)
		gens.GET("", s.handleList)
		gens.GET("/:id", s.handleGet)
		gens.GET("/:id/assets", s.handleAssets)
		gens.POST("/:id/cancel", s.handleCancel)
		gens.PUT("/:id/tier", s.handleTier)
		gens.GET("/:id/events", s.handleEvents)
	}
	return r
}

// requestContext tags each request with a correlation id.
func (s *apiServer) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStart(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 8<<20))
	if err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "read body", "request body unreadable", err))
		return
	}
	req, err := api.DecodeStartRequest(body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	id, err := s.svc.Start(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Location", "/api/generations/"+id)
	c.JSON(http.StatusCreated, api.StartResponse{ID: id, Status: string(queue.StatusPending)})
}

func (s *apiServer) handleList(c *gin.Context) {
	var statuses []queue.Status
	for _, value := range c.QueryArray("status") {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				statuses = append(statuses, queue.Status(trimmed))
			}
		}
	}
	gens, err := s.svc.List(c.Request.Context(), statuses...)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.GenerationListResponse{Generations: api.FromGenerations(gens)})
}

func (s *apiServer) handleGet(c *gin.Context) {
	g, err := s.svc.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromGeneration(g))
}

func (s *apiServer) handleAssets(c *gin.Context) {
	id := c.Param("id")
	assets, err := s.svc.Assets(c.Request.Context(), id, queue.AssetKind(strings.TrimSpace(c.Query("kind"))))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.AssetListResponse{GenerationID: id, Assets: api.FromAssets(assets)})
}

func (s *apiServer) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if err := s.svc.Cancel(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondWithGeneration(c, id)
}

func (s *apiServer) handleTier(c *gin.Context) {
	var req api.TierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "decode tier", "invalid request body", err))
		return
	}
	id := c.Param("id")
	if err := s.svc.SetQualityTier(c.Request.Context(), id, req.QualityTier); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondWithGeneration(c, id)
}

// handleEvents streams progress as server-sent events until the final event
// or the client disconnects.
func (s *apiServer) handleEvents(c *gin.Context) {
	events, stop, err := s.svc.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("progress", ev)
			c.Writer.Flush()
			if ev.Final {
				return
			}
		}
	}
}

func (s *apiServer) handleStatus(c *gin.Context) {
	status := s.daemon.Status(c.Request.Context())
	db := api.DatabaseStatus{
		Driver:  status.Database.Driver,
		Healthy: status.Database.DatabaseReadable && status.Database.Error == "",
		Detail:  status.Database.Error,
	}
	c.JSON(http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		Database:     db,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleLogs(c *gin.Context) {
	hub := s.daemon.LogStream()
	if hub == nil {
		c.JSON(http.StatusOK, api.LogStreamResponse{})
		return
	}
	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := c.Query("follow") == "1" || strings.EqualFold(c.Query("follow"), "true")
	tail := c.Query("tail") == "1" || strings.EqualFold(c.Query("tail"), "true")
	generation := strings.TrimSpace(c.Query("generation"))
	component := strings.TrimSpace(c.Query("component"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if tail && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		var err error
		raw, next, err = hub.Fetch(c.Request.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(c, err)
			return
		}
	}

	events := api.FromLogEvents(raw)
	filtered := events[:0]
	for _, evt := range events {
		if generation != "" && evt.GenerationID != generation {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	c.JSON(http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

func (s *apiServer) respondWithGeneration(c *gin.Context, id string) {
	g, err := s.svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromGeneration(g))
}

func (s *apiServer) writeError(c *gin.Context, err error) {
	details := services.Details(err)
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check daemon logs for the failing component"),
		)
	}
	c.AbortWithStatusJSON(code, api.ErrorResponse{
		Error: details.Message,
		Kind:  string(details.Kind),
		Hint:  details.Hint,
	})
}

// httpStatus maps error markers to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrParseAmbiguity):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTerminal), errors.Is(err, services.ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
