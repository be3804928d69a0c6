package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	HeaderRequestID = "X-Request-ID"
	LocalsRequestID = "requestID"

	requestIDCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	requestIDLength  = 21
	maxRequestIDLen  = 128
)

// ErrorBody is the JSON envelope of every failed request.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Category  string         `json:"category"`
	TextCode  string         `json:"text_code,omitempty"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// RequestIDMiddleware tags each request with an id, reusing a sane incoming
// X-Request-ID header, and makes it available through Locals and UserContext.
func RequestIDMiddleware(logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > maxRequestIDLen {
			id, err := gonanoid.Generate(requestIDCharset, requestIDLength)
			if err != nil {
				logger.Error("failed to generate request id", "error", err)
				return fiber.ErrInternalServerError
			}
			requestID = id
		}

		c.Locals(LocalsRequestID, requestID)
		c.Set(HeaderRequestID, requestID)
		c.SetUserContext(WithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalsRequestID).(string); ok {
		return id
	}
	return ""
}

// NewErrorHandler renders errors as JSON, using the go-errors code as the
// HTTP status. It can serve as fiber.Config.ErrorHandler.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		richErr := toHTTPError(err)

		status := richErr.Code
		if status < 400 || status > 599 {
			status = fiber.StatusInternalServerError
		}

		payload := ErrorPayload{
			Category:  string(richErr.Category),
			TextCode:  richErr.TextCode,
			Message:   richErr.Message,
			Metadata:  richErr.Metadata,
			RequestID: RequestID(c),
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"request_id", payload.RequestID,
				"path", c.Path(),
				"status", status,
				"error", err,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
			payload.Message = "An unexpected server error occurred"
			payload.Metadata = nil
		} else {
			logger.Info("request rejected",
				"request_id", payload.RequestID,
				"path", c.Path(),
				"status", status,
				"text_code", richErr.TextCode,
			)
		}

		return c.Status(status).JSON(ErrorBody{Error: payload})
	}
}

func toHTTPError(err error) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) {
		category := goerrors.CategoryInternal
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			category = goerrors.CategoryNotFound
		case fiberErr.Code < fiber.StatusInternalServerError:
			category = goerrors.CategoryBadInput
		}
		return goerrors.New(fiberErr.Message, category).WithCode(fiberErr.Code)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
		WithCode(goerrors.CodeInternal)
}

// BearerToken extracts the token of an "Authorization: <scheme> <token>"
// header. The scheme match is case insensitive.
func BearerToken(c *fiber.Ctx, scheme string) string {
	if scheme == "" {
		scheme = "Bearer"
	}

	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) <= len(scheme)+1 {
		return ""
	}

	if !strings.EqualFold(header[:len(scheme)], scheme) || header[len(scheme)] != ' ' {
		return ""
	}

	return strings.TrimSpace(header[len(scheme)+1:])
}
