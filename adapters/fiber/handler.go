package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/lborres/opgate"
	"github.com/lborres/opgate/internal/logger"
)

const (
	opRequestPasswordReset = "requestPasswordReset"
	opConfirmPasswordReset = "confirmPasswordReset"
)

const loginRequiredMessage = "Registration completed but automatic sign-in failed. Please log in manually."

// resetBody carries both phases of the reset endpoint.
type resetBody struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (a *Adapter) handleLogin(auth opgate.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input opgate.LoginInput
		if err := c.Bind().Body(&input); err != nil {
			return a.fail(c, opgate.OperationLogin, opgate.ErrInvalidRequestBody)
		}

		result, err := auth.Login(c.Context(), input)
		if err != nil {
			return a.fail(c, opgate.OperationLogin, err)
		}

		a.record(opgate.OperationLogin, nil)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"success": true,
			"session": result.Session,
		})
	}
}

func (a *Adapter) handleRegister(auth opgate.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var input opgate.RegisterInput
		if err := c.Bind().Body(&input); err != nil {
			return a.fail(c, opgate.OperationRegister, opgate.ErrInvalidRequestBody)
		}

		result, err := auth.Register(c.Context(), input)
		if err != nil {
			return a.fail(c, opgate.OperationRegister, err)
		}

		a.record(opgate.OperationRegister, nil)
		if result.LoginRequired {
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"success":       true,
				"loginRequired": true,
				"message":       loginRequiredMessage,
			})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"success": true,
			"session": result.Session,
		})
	}
}

// handleResetPassword dispatches on the body: an email alone requests a
// link, email + token + newPassword consumes one.
func (a *Adapter) handleResetPassword(auth opgate.AuthHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		var body resetBody
		if err := c.Bind().Body(&body); err != nil {
			return a.fail(c, opgate.OperationResetPassword, opgate.ErrInvalidRequestBody)
		}

		switch {
		case body.Token == "" && body.NewPassword == "":
			result, err := auth.RequestPasswordReset(c.Context(), opgate.ResetRequestInput{Email: body.Email})
			if err != nil {
				return a.fail(c, opRequestPasswordReset, err)
			}
			a.record(opRequestPasswordReset, nil)
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"success": true,
				"message": result.Message,
			})

		case body.Token != "" && body.NewPassword != "":
			result, err := auth.ResetPassword(c.Context(), opgate.ResetPasswordInput{
				Email:       body.Email,
				Token:       body.Token,
				NewPassword: body.NewPassword,
			})
			if err != nil {
				return a.fail(c, opConfirmPasswordReset, err)
			}
			a.record(opConfirmPasswordReset, nil)
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"success":        true,
				"message":        result.Message,
				"identitySynced": result.IdentitySynced,
			})

		default:
			return a.fail(c, opgate.OperationResetPassword, opgate.ErrInvalidParameters)
		}
	}
}

// fail writes the client-safe part of err. Internal causes only go to the log.
func (a *Adapter) fail(c fiber.Ctx, operation string, err error) error {
	a.record(operation, err)

	status := mapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		logger.From(c.Context()).Error("request failed", logger.Op(operation), logger.Err(err))
	}
	return c.Status(status).JSON(opgate.ErrorResponse{Error: opgate.PublicMessage(err)})
}

func (a *Adapter) record(operation string, err error) {
	if a.metrics != nil {
		a.metrics.RecordOutcome(operation, err)
	}
}

// mapErrorToStatus maps error kinds to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch opgate.KindOf(err) {
	case opgate.KindInvalidInput:
		return http.StatusBadRequest
	case opgate.KindUnauthorized:
		return http.StatusUnauthorized
	case opgate.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
