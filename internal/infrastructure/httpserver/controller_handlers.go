package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-cache/internal/core/domain/cache"
	"github.com/avatarctic/offline-cache/internal/infrastructure/httpserver/helpers"
)

type namespacesResponse struct {
	Namespaces []string `json:"namespaces"`
}

func (s *Server) controllerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.host.Status())
}

func (s *Server) postMessage(c echo.Context) error {
	var msg cache.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message")
	}
	if msg.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message type is required")
	}

	err := s.host.PostMessage(c.Request().Context(), msg)
	switch {
	case errors.Is(err, cache.ErrNoActiveController):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		// The promotion happened; only namespace cleanup failed.
		if s.logger != nil {
			s.logger.WithError(err).Warn("controller message handled with errors")
		}
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"type": msg.Type, "subject": helpers.GetControlSubject(c)}).Info("controller message accepted")
	}
	return c.JSON(http.StatusAccepted, s.host.Status())
}

func (s *Server) openClient(c echo.Context) error {
	return c.JSON(http.StatusCreated, s.host.OpenClient())
}

func (s *Server) closeClient(c echo.Context) error {
	id, err := helpers.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	err = s.host.CloseClient(c.Request().Context(), id)
	switch {
	case errors.Is(err, cache.ErrClientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil && s.logger != nil:
		s.logger.WithError(err).Warn("waiting controller activated with errors")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listNamespaces(c echo.Context) error {
	names, err := s.host.Namespaces(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list namespaces")
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, namespacesResponse{Namespaces: names})
}
