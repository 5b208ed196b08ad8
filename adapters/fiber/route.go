package fiber

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/lborres/opgate"
	"github.com/lborres/opgate/internal/metrics"
)

type Adapter struct {
	app     *fiber.App
	metrics *metrics.Metrics
}

var _ opgate.HTTPAdapter = (*Adapter)(nil)

type Option func(*Adapter)

// WithMetrics records request and outcome metrics for the auth routes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

func New(app *fiber.App, opts ...Option) *Adapter {
	a := &Adapter{app: app}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) RegisterRoutes(handler opgate.AuthHandler, basePath string) error {
	if handler == nil {
		return errors.New("fiber: auth handler is nil")
	}

	handlers := map[string]fiber.Handler{
		opgate.OperationLogin:         a.handleLogin(handler),
		opgate.OperationRegister:      a.handleRegister(handler),
		opgate.OperationResetPassword: a.handleResetPassword(handler),
	}

	api := a.app.Group(basePath, a.requestLogger, a.instrument, cors, recover.New())

	// Preflight
	api.Options("/*", preflight)

	for _, ep := range opgate.NewEndpointRegistry().Endpoints() {
		h, ok := handlers[ep.Metadata.OperationID]
		if !ok {
			return fmt.Errorf("fiber: no handler for operation %q", ep.Metadata.OperationID)
		}
		api.Add([]string{ep.Method}, ep.Path, h)
	}

	return nil
}
