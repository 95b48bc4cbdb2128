package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bnema/afk-farmer/internal/application"
	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/observability"
	"github.com/bnema/afk-farmer/internal/version"
)

// SessionService is the part of the supervisor the admin API drives.
type SessionService interface {
	Add(ctx context.Context, cmd application.AddCommand) (application.AddResult, error)
	Remove(ctx context.Context, ref string) (domain.SessionKey, error)
	Restart(ctx context.Context, ref string) error
	Stop(ctx context.Context, ref string) error
	List(ctx context.Context) []application.Snapshot
	Get(ctx context.Context, ref string) (application.Snapshot, error)
}

var _ SessionService = (*application.Supervisor)(nil)

type Server struct {
	service SessionService
	router  *gin.Engine
	started time.Time
	http    *http.Server
}

type addRequest struct {
	Credential string `json:"credential" binding:"required"`
	Actor      string `json:"actor"`
}

type AddResponse struct {
	Key      domain.SessionKey `json:"key"`
	TenantID string            `json:"tenant_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(service SessionService, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())

	s := &Server{service: service, router: r, started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).Truncate(time.Second).String(),
			"version": version.Version,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessions := s.router.Group("/sessions")
	sessions.GET("", s.listSessions)
	sessions.POST("", s.addSession)
	sessions.GET("/:ref", s.getSession)
	sessions.DELETE("/:ref", s.removeSession)
	sessions.POST("/:ref/restart", s.restartSession)
	sessions.POST("/:ref/stop", s.stopSession)
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.List(c.Request.Context()))
}

func (s *Server) getSession(c *gin.Context) {
	snap, err := s.service.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) addSession(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res, err := s.service.Add(c.Request.Context(), application.AddCommand{Credential: req.Credential, Actor: req.Actor})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, AddResponse{Key: res.Key, TenantID: res.TenantID})
}

func (s *Server) removeSession(c *gin.Context) {
	if _, err := s.service.Remove(c.Request.Context(), c.Param("ref")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) restartSession(c *gin.Context) {
	if err := s.service.Restart(c.Request.Context(), c.Param("ref")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "restarting"})
}

func (s *Server) stopSession(c *gin.Context) {
	if err := s.service.Stop(c.Request.Context(), c.Param("ref")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "stopped"})
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExists), errors.Is(err, domain.ErrAmbiguousSession):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTenantNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidCredential):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe blocks until the server stops. It returns nil after a
// clean Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
