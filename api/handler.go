// Package api exposes the admin HTTP interface of srmgate: identity
// inspection, garbage collection and store statistics.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/health"
	"github.com/srmgate/srmgate/core/identity"
	"github.com/srmgate/srmgate/core/logger"
	"go.uber.org/zap"
)

type Handler struct {
	manager *identity.Manager
	store   *cas.Store
	metrics http.Handler
	health  *health.Manager
	log     *zap.Logger
}

func NewHandler(manager *identity.Manager, store *cas.Store) *Handler {
	return &Handler{manager: manager, store: store, log: logger.Get()}
}

// EnableMetrics serves the default Prometheus registry on /metrics.
func (h *Handler) EnableMetrics() {
	h.metrics = promhttp.Handler()
}

// EnableReadiness serves the backend report of hm on /ready.
func (h *Handler) EnableReadiness(hm *health.Manager) {
	h.health = hm
}

// RegisterSystemRoutes adds /health and, when enabled, /ready and /metrics.
func (h *Handler) RegisterSystemRoutes(e *echo.Echo) {
	e.GET("/health", h.HandleHealth)
	if h.health != nil {
		e.GET("/ready", h.HandleReady)
	}
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	g.GET("/identities/:id", h.HandleShowIdentity)
	g.POST("/gc", h.HandleGC)
	g.GET("/stats", h.HandleStats)
}

// IdentityView is the JSON form of a restored identity. The id is a string
// because JSON numbers lose precision above 2^53.
type IdentityView struct {
	ID          string   `json:"id,omitempty"`
	DisplayName string   `json:"display_name"`
	LoggedIn    bool     `json:"logged_in"`
	ReadOnly    bool     `json:"read_only"`
	Root        string   `json:"root"`
	Home        string   `json:"home,omitempty"`
	Principals  []string `json:"principals"`
}

func NewIdentityView(i *identity.Identity) *IdentityView {
	v := &IdentityView{
		DisplayName: i.DisplayName(),
		LoggedIn:    i.LoggedIn(),
		ReadOnly:    i.ReadOnly(),
		Root:        i.Root(),
		Home:        i.Home(),
		Principals:  []string{},
	}
	if id, ok := i.ID(); ok {
		v.ID = strconv.FormatInt(id, 10)
	}
	for _, p := range i.Principals() {
		v.Principals = append(v.Principals, p.String())
	}
	return v
}

func (h *Handler) HandleShowIdentity(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid identity id", err)
	}

	ident, err := h.manager.Find(c.Request().Context(), c.QueryParam("origin"), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, NewIdentityView(ident))
	case errors.Is(err, domain.ErrNoSuchIdentity):
		return h.Error(c, http.StatusNotFound, "Identity not found", err)
	case errors.Is(err, domain.ErrCorruptRecord):
		return h.Error(c, http.StatusUnprocessableEntity, "Corrupt identity record", err)
	case errors.Is(err, domain.ErrUnavailable):
		return h.Error(c, http.StatusServiceUnavailable, "Storage unavailable", err)
	default:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
}

func (h *Handler) HandleGC(c echo.Context) error {
	n, err := h.manager.GC(c.Request().Context())
	if err != nil {
		h.log.Warn("gc request failed", zap.Int("deleted", n), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"status":  "GC failed",
			"code":    http.StatusInternalServerError,
			"deleted": n,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": n})
}

func (h *Handler) HandleStats(c echo.Context) error {
	s := h.store.Stats()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cached_values":     s.CachedValues,
		"canonical_handles": s.CanonicalHandles,
	})
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleReady(c echo.Context) error {
	report := h.health.Check(c.Request().Context())
	if !report.Ready() {
		return c.JSON(http.StatusServiceUnavailable, report)
	}
	return c.JSON(http.StatusOK, report)
}

// Helper for professional errors
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]interface{}{
		"status": message,
		"code":   code,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		resp["request_id"] = rid
	}
	return c.JSON(code, resp)
}
