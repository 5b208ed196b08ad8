package fiber

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/lborres/opgate/internal/logger"
)

const headerRequestID = "X-Request-ID"

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, OPTIONS"
)

// cors sets the headers on every response, errors included.
func cors(c fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
	c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
	return c.Next()
}

// preflight answers with an empty 200.
func preflight(c fiber.Ctx) error {
	c.Status(fiber.StatusOK)
	return nil
}

// requestLogger puts a request-scoped logger into the request context and
// logs one line per request.
func (a *Adapter) requestLogger(c fiber.Ctx) error {
	start := time.Now()

	requestID := c.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(headerRequestID, requestID)

	log := logger.Named("http").With(
		logger.RequestID(requestID),
		logger.Method(c.Method()),
		logger.Path(c.Path()),
	)
	c.SetContext(logger.ToContext(c.Context(), log))

	err := c.Next()

	status := c.Response().StatusCode()
	log.Info("request",
		logger.Status(status),
		logger.Duration(time.Since(start)),
		logger.ClientIP(c.IP()),
	)
	return err
}

func (a *Adapter) instrument(c fiber.Ctx) error {
	if a.metrics == nil {
		return c.Next()
	}

	start := time.Now()
	a.metrics.RequestStarted()
	err := c.Next()
	a.metrics.RequestFinished(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start))
	return err
}
