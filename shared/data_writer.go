package shared

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var jsonAPI = sonic.Config{
	UseNumber:            true,
	EscapeHTML:           false,
	SortMapKeys:          false,
	CompactMarshaler:     true,
	NoQuoteTextMarshaler: true,
	NoNullSliceOrMap:     true,
}.Froze()

var (
	successResponse = mustMarshal(Response{Code: 200, Message: "Success"})
	createdResponse = mustMarshal(Response{Code: 201, Message: "Created"})
)

func mustMarshal(v interface{}) []byte {
	b, _ := jsonAPI.Marshal(v)
	return b
}

func writeJSON(c *fiber.Ctx, httpCode int, v interface{}) error {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Status(httpCode).Send(b)
}

func ResponseJSON(c *fiber.Ctx, httpCode int, message string, data interface{}) error {
	if data == nil {
		switch {
		case httpCode == 200 && message == "Success":
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			return c.Status(httpCode).Send(successResponse)
		case httpCode == 201 && message == "Created":
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			return c.Status(httpCode).Send(createdResponse)
		}
	}

	return writeJSON(c, httpCode, Response{
		Code:    httpCode,
		Message: message,
		Data:    data,
	})
}

func ResponseOK(c *fiber.Ctx, data interface{}) error {
	return ResponseJSON(c, 200, "Success", data)
}

func ResponseCreated(c *fiber.Ctx, data interface{}) error {
	return ResponseJSON(c, 201, "Created", data)
}

// Gateway admission failures carry their own wire shapes rather than the
// generic envelope. The shape depends on the error code:
//
//	token expired   -> {error, expired_at, timestamp}
//	rate limited    -> {error, message, retryAfter, blocked, timestamp}
//	everything else -> {error, message, timestamp}
func WriteError(c *fiber.Ctx, appErr *AppError) error {
	ts := time.Now().UTC().Format(time.RFC3339)

	switch appErr.Code {
	case CodeTokenExpired:
		return writeJSON(c, appErr.StatusCode, fiber.Map{
			"error":      appErr.Message,
			"expired_at": appErr.ExpiredAt.UTC().Format(time.RFC3339),
			"timestamp":  ts,
		})

	case CodeRateLimited:
		return writeJSON(c, appErr.StatusCode, fiber.Map{
			"error":      "Rate limit exceeded",
			"message":    appErr.Message,
			"retryAfter": appErr.RetryAfter,
			"blocked":    true,
			"timestamp":  ts,
		})

	case CodePayloadMalformed, CodeAdminNotFound, CodeUserNotFound, CodeStoreUnavailable:
		return writeJSON(c, appErr.StatusCode, fiber.Map{
			"error":     appErr.Message,
			"timestamp": ts,
		})

	default:
		return writeJSON(c, appErr.StatusCode, fiber.Map{
			"error":     appErr.Message,
			"message":   appErr.Message,
			"timestamp": ts,
		})
	}
}
