package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type startOptionsFlowRequest struct {
	EntryId string `json:"entry_id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.POST("/config/flow", s.StartConfigFlowHandler)
	api.GET("/config/flow", s.FlowProgressHandler)
	api.POST("/config/flow/:flow_id", s.ConfigureFlowHandler)
	api.DELETE("/config/flow/:flow_id", s.AbortFlowHandler)
	api.POST("/config/options/flow", s.StartOptionsFlowHandler)
	api.POST("/config/options/flow/:flow_id", s.ConfigureFlowHandler)
	api.DELETE("/config/options/flow/:flow_id", s.AbortFlowHandler)
	api.GET("/config/entries", s.ListEntriesHandler)
	api.DELETE("/config/entries/:entry_id", s.RemoveEntryHandler)
	api.POST("/config/entries/:entry_id/reload", s.ReloadEntryHandler)
	api.GET("/states/:entry_id", s.EntityStatesHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StartConfigFlowHandler(c echo.Context) error {
	res, err := s.flows.StartConfigFlow(c.Request().Context())
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) StartOptionsFlowHandler(c echo.Context) error {
	var req startOptionsFlowRequest
	if err := c.Bind(&req); err != nil || req.EntryId == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "entry_id is required"})
	}
	res, err := s.flows.StartOptionsFlow(c.Request().Context(), req.EntryId)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) ConfigureFlowHandler(c echo.Context) error {
	input := map[string]any{}
	// body only, path params must not leak into the form
	if err := (&echo.DefaultBinder{}).BindBody(c, &input); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid form input"})
	}
	res, err := s.flows.Configure(c.Request().Context(), c.Param("flow_id"), input)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) AbortFlowHandler(c echo.Context) error {
	if err := s.flows.Abort(c.Param("flow_id")); err != nil {
		return s.errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) FlowProgressHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.flows.Progress())
}

func (s *Server) ListEntriesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.entries.Entries())
}

func (s *Server) RemoveEntryHandler(c echo.Context) error {
	if err := s.entries.RemoveEntry(c.Request().Context(), c.Param("entry_id")); err != nil {
		return s.errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ReloadEntryHandler(c echo.Context) error {
	if err := s.entries.ReloadEntry(c.Request().Context(), c.Param("entry_id")); err != nil {
		return s.errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) EntityStatesHandler(c echo.Context) error {
	states, err := s.platform.States(c.Request().Context(), c.Param("entry_id"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, states)
}

func (s *Server) errorJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrFlowInProgress), errors.Is(err, domain.ErrUnregistrationConflict):
		status = http.StatusConflict
	default:
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, errorResponse{Message: err.Error()})
}
