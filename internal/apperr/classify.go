package apperr

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

// Classify resolves err to a code and the detail that may be shown to the caller.
func Classify(err error) (Code, string) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code, tagged.Detail
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Code(), ""
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return codeForStatus(fiberErr.Code), fiberErr.Message
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return CodeNotFound, ""
	case errors.Is(err, repository.ErrConflict):
		return CodeAlreadyExists, ""
	case errors.Is(err, models.ErrInvalidTransition):
		return CodeFailedPrecondition, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded, ""
	case errors.Is(err, context.Canceled):
		return CodeCancelled, ""
	}
	return CodeInternal, ""
}

func codeForStatus(status int) Code {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return CodeInvalidArgument
	case fiber.StatusUnauthorized:
		return CodeUnauthenticated
	case fiber.StatusForbidden:
		return CodePermissionDenied
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusMethodNotAllowed, fiber.StatusNotImplemented:
		return CodeUnimplemented
	case fiber.StatusConflict:
		return CodeFailedPrecondition
	case fiber.StatusTooManyRequests:
		return CodeResourceExhausted
	case fiber.StatusRequestTimeout, fiber.StatusGatewayTimeout:
		return CodeDeadlineExceeded
	case fiber.StatusBadGateway, fiber.StatusServiceUnavailable:
		return CodeUnavailable
	}
	return CodeInternal
}
