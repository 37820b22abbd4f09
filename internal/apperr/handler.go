package apperr

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every error returned by a handler as
// {"success": false, "error": <localized>, "code": <code>}.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, detail := Classify(err)
		status := Status(code)

		// fiber errors carry their own status, e.g. 405 or 413.
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.String("code", string(code)),
			zap.Error(err),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}

		body := fiber.Map{
			"success": false,
			"error":   Message(code),
			"code":    code,
		}
		if detail != "" && status < fiber.StatusInternalServerError {
			body["detail"] = detail
		}
		return c.Status(status).JSON(body)
	}
}
