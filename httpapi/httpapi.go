// Package httpapi serves the registry over HTTP. Mutating endpoints only
// arm an acquisition; clients poll /api/status for the result.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tagkeep/coordinator"
	"tagkeep/registry"
	"tagkeep/uid"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string        `yaml:"addr"`
	Debug           bool          `yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Backend is the engine surface the API drives.
type Backend interface {
	Submit(ctx context.Context, req coordinator.Request) (uuid.UUID, error)
	Delete(ctx context.Context, id uid.ID) (registry.Entry, error)
	List(ctx context.Context) ([]registry.Entry, error)
	Status(ctx context.Context) (coordinator.Status, error)
}

type item struct {
	Name string `json:"name"`
	UID  string `json:"uid"`
}

type itemsResponse struct {
	Count int    `json:"count"`
	Items []item `json:"items"`
}

type statusResponse struct {
	Status       string `json:"status"`
	TotalItems   int    `json:"total_items"`
	MaxItems     int    `json:"max_items"`
	RegisterMode bool   `json:"register_mode"`
	IdentifyMode bool   `json:"identify_mode"`
	RenameMode   bool   `json:"rename_mode"`
	LastItem     string `json:"last_item"`
	LastResult   string `json:"last_result"`
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Server is the HTTP front-end.
type Server struct {
	cfg     Config
	backend Backend
	ge      *gin.Engine
	srv     *http.Server
}

// New builds the router. Call Start to listen.
func New(cfg Config, backend Backend) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if !cfg.Debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, backend: backend, ge: gin.New()}
	if cfg.Debug {
		s.ge.Use(gin.Logger())
	}
	s.ge.Use(gin.Recovery())

	s.ge.GET("/ping", s.ping)
	s.ge.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.ge.Group("/api")
	api.GET("/items", s.items)
	api.GET("/status", s.status)
	api.GET("/register", s.register)
	api.GET("/identify", s.identify)
	api.GET("/rename", s.rename)
	api.GET("/delete", s.delete)

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.ge
}

// Start listens in the background.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.ge,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server: %v", err)
		}
	}()
}

// Shutdown stops the listener, waiting up to the configured timeout.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (s *Server) items(c *gin.Context) {
	entries, err := s.backend.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, result{Message: err.Error()})
		return
	}

	resp := itemsResponse{Count: len(entries), Items: make([]item, 0, len(entries))}
	for _, e := range entries {
		resp.Items = append(resp.Items, item{Name: e.Label, UID: e.ID.String()})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) status(c *gin.Context) {
	st, err := s.backend.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, result{Message: err.Error()})
		return
	}

	resp := statusResponse{
		Status:       "online",
		TotalItems:   st.Total,
		MaxItems:     st.Capacity,
		RegisterMode: st.Mode == coordinator.IntentRegister,
		IdentifyMode: st.Mode == coordinator.IntentIdentify,
		RenameMode:   st.Mode == coordinator.IntentRename,
		LastItem:     st.LastItem,
	}
	if st.Last != nil {
		resp.LastResult = st.Last.Outcome.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) register(c *gin.Context) {
	name := c.Query("name")
	s.submit(c, coordinator.Request{Intent: coordinator.IntentRegister, Label: name, Origin: coordinator.OriginHTTP},
		fmt.Sprintf("Register mode active for %q, present a card", name))
}

func (s *Server) identify(c *gin.Context) {
	s.submit(c, coordinator.Request{Intent: coordinator.IntentIdentify, Origin: coordinator.OriginHTTP},
		"Identify mode active, present a card")
}

func (s *Server) rename(c *gin.Context) {
	name := c.Query("name")
	s.submit(c, coordinator.Request{Intent: coordinator.IntentRename, Label: name, Origin: coordinator.OriginHTTP},
		fmt.Sprintf("Rename mode active for %q, present a card", name))
}

func (s *Server) submit(c *gin.Context, req coordinator.Request, msg string) {
	_, err := s.backend.Submit(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result{Success: true, Message: msg})
	case errors.Is(err, coordinator.ErrBusy):
		c.JSON(http.StatusConflict, result{Message: "Another operation is in progress"})
	case errors.Is(err, registry.ErrInvalidLabel):
		c.JSON(http.StatusBadRequest, result{Message: err.Error()})
	default:
		c.JSON(http.StatusServiceUnavailable, result{Message: err.Error()})
	}
}

func (s *Server) delete(c *gin.Context) {
	raw := c.Query("uid")
	id, err := uid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, result{Message: fmt.Sprintf("invalid uid %q: %v", raw, err)})
		return
	}

	entry, err := s.backend.Delete(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result{Success: true, Message: fmt.Sprintf("Deleted %q", entry.Label)})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, result{Message: fmt.Sprintf("%s not found", id)})
	case errors.Is(err, registry.ErrPersistenceFailed):
		c.JSON(http.StatusInternalServerError, result{Message: err.Error()})
	default:
		c.JSON(http.StatusServiceUnavailable, result{Message: err.Error()})
	}
}
