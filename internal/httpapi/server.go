// Package httpapi serves the studio over HTTP with multipart uploads.
//
// Every image route takes the image in the multipart field "image" and the
// parameters as form values. Output encoding is read from form values
// prefixed with "output." (output.format, output.quality, ...). Errors are
// returned as {"kind": ..., "message": ...} with a status derived from the
// error kind: 400 for invalid parameters and unsupported operations, 422
// for undecodable input, 500 otherwise.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/config"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/studio"
)

// Server is the HTTP entry point.
type Server struct {
	e      *echo.Echo
	studio *studio.Studio
	cfg    config.HTTP
	log    logrus.FieldLogger
}

// errorBody is the JSON error response.
type errorBody struct {
	Kind    imgerr.Kind `json:"kind,omitempty"`
	Message string      `json:"message"`
}

// New builds the router over st.
func New(st *studio.Studio, cfg config.HTTP, log logrus.FieldLogger) *Server {
	e := echo.New()
	e.HideBanner = true

	s := &Server{e: e, studio: st, cfg: cfg, log: log.WithField("component", "http")}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestLogger(s.log))
	if cfg.MaxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB)))
	}

	e.GET("/healthz", s.health)

	api := e.Group("/api/v1")
	api.GET("/operations", s.operations)
	api.GET("/jobs", s.jobs)
	api.POST("/info", s.info)
	api.POST("/ops/:name", s.applyOne)
	api.POST("/edit", s.edit)
	api.POST("/batch", s.batch)
	api.POST("/palette", s.palette)
	api.POST("/ocr", s.ocr)
	api.POST("/compress", s.compress)
	api.POST("/estimate", s.estimate)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run listens on the configured address until ctx ends, then shuts down
// gracefully within the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	s.log.WithField("addr", s.cfg.Addr).Info("http server starting")

	serverError := make(chan error, 1)
	go func() {
		if err := s.e.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
			serverError <- errors.Wrap(err, "http server error")
		}
	}()

	select {
	case err := <-serverError:
		return err
	case <-ctx.Done():
		s.log.Info("http server stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()

		if stopErr := s.e.Shutdown(shutdownCtx); stopErr != nil {
			closeErr := s.e.Close()
			return errors.Wrap(closeErr, stopErr.Error())
		}
		return nil
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	var body errorBody
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body = errorBody{Message: fmt.Sprint(he.Message)}
	} else {
		err = imgerr.Classify("request", err)
		status = imgerr.Status(err)
		body = errorBody{Kind: imgerr.KindOf(err), Message: err.Error()}
	}

	entry := s.log.WithFields(logrus.Fields{"path": c.Path(), "status": status, "kind": body.Kind})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Debug(body.Message)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.log.WithError(err).Warn("could not write error response")
	}
}

func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			log.WithFields(logrus.Fields{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"bytes":   c.Response().Size,
				"latency": time.Since(start).String(),
			}).Info("request")
			return nil
		}
	}
}
