package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/apierror"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get("X-Request-ID", "")
}

// SendError renders err as an ErrorResponse. Errors outside the apierror
// taxonomy are reported as internal errors.
func SendError(c *fiber.Ctx, err error) error {
	apiErr := apierror.From(err)
	status := apiErr.StatusCode()

	if status >= fiber.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("path", c.Path()).
			Str("request_id", getRequestID(c)).
			Msg("Request failed")
	}

	return c.Status(status).JSON(ErrorResponse{
		Error:     errorTitle(apiErr.Kind),
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: getRequestID(c),
	})
}

func errorTitle(kind apierror.Kind) string {
	switch kind {
	case apierror.KindBadRequest:
		return "Bad Request"
	case apierror.KindNotFound:
		return "Not Found"
	default:
		return "Internal Server Error"
	}
}

// customErrorHandler handles errors returned by handlers and fiber itself
func customErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error:     fiberErr.Message,
			Code:      codeForStatus(fiberErr.Code),
			RequestID: getRequestID(c),
		})
	}
	return SendError(c, err)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "ROUTE_NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	}
	if status >= fiber.StatusInternalServerError {
		return apierror.CodeInternal
	}
	return "BAD_REQUEST"
}
