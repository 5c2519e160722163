// api/middleware/error_handler.go
package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10" // Import validator for binding errors

	"github.com/vertabase/verta-backend/internal/auth"
	"github.com/vertabase/verta-backend/internal/logger"
	"github.com/vertabase/verta-backend/internal/migrate"
	"github.com/vertabase/verta-backend/internal/record"
	"github.com/vertabase/verta-backend/internal/schema"
	"github.com/vertabase/verta-backend/internal/service"
	"github.com/vertabase/verta-backend/internal/storage"
)

var customLog = logger.NewLogger()

// ErrorHandler creates a Gin middleware for centralized error handling.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request using subsequent handlers
		c.Next()

		// Check if any errors were attached during handler execution
		if len(c.Errors) == 0 {
			return // No errors, nothing to do
		}

		// We only handle the last error for the response.
		err := c.Errors.Last().Err

		customLog.Printf("[ErrorHandler] Detected error: %v | Type: %T", err, err)

		// --- Map error to HTTP status code and user message ---
		var statusCode int
		var userMessage string
		var details any

		var schemaErr *schema.SchemaError
		var validationErr *schema.ValidationError
		var migrateErr *migrate.Error
		var jsonSyntaxErr *json.SyntaxError
		var jsonTypeErr *json.UnmarshalTypeError

		switch {
		case errors.Is(err, storage.ErrUserNotFound),
			errors.Is(err, storage.ErrCollectionNotFound),
			errors.Is(err, storage.ErrVersionNotFound),
			errors.Is(err, record.ErrRecordNotFound),
			errors.Is(err, storage.ErrTokenNotFound):
			statusCode = http.StatusNotFound
			userMessage = err.Error()

		case errors.Is(err, storage.ErrEmailExists),
			errors.Is(err, storage.ErrCollectionExists),
			errors.Is(err, record.ErrUniqueViolation):
			statusCode = http.StatusConflict
			userMessage = err.Error()

		case errors.Is(err, storage.ErrInvalidCredentials):
			statusCode = http.StatusUnauthorized
			userMessage = "Invalid email or password."

		case errors.Is(err, auth.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			userMessage = "Authentication token has expired."

		case errors.Is(err, auth.ErrTokenRevoked):
			statusCode = http.StatusUnauthorized
			userMessage = "Authentication token has been revoked."

		case errors.Is(err, auth.ErrTokenMalformed),
			errors.Is(err, auth.ErrTokenInvalid),
			errors.Is(err, auth.ErrTokenClaimsInvalid),
			errors.Is(err, auth.ErrUnexpectedSigningMethod),
			errors.Is(err, storage.ErrTokenSpent):
			statusCode = http.StatusUnauthorized
			userMessage = "Invalid or malformed authentication token."

		case errors.Is(err, ErrAuthHeaderMissing), errors.Is(err, ErrAuthHeaderFormat):
			statusCode = http.StatusUnauthorized
			userMessage = err.Error()

		case errors.Is(err, service.ErrPermissionDenied):
			statusCode = http.StatusForbidden
			userMessage = "You are not allowed to perform this request."

		case errors.Is(err, auth.ErrWeakPassword):
			statusCode = http.StatusBadRequest
			userMessage = err.Error()

		case errors.As(err, &validationErr):
			statusCode = http.StatusBadRequest
			userMessage = "Validation failed. Please check your input."
			details = validationErr.Fields

		case errors.As(err, &schemaErr):
			statusCode = http.StatusBadRequest
			userMessage = schemaErr.Error()

		case errors.As(err, &migrateErr):
			// Migration failures already rolled the metadata back; the
			// client sees a server-side failure, not a bad request.
			statusCode = http.StatusInternalServerError
			userMessage = "Schema migration failed. The collection was left unchanged."

		case errors.As(err, &jsonSyntaxErr),
			errors.As(err, &jsonTypeErr),
			errors.Is(err, io.EOF),
			errors.Is(err, io.ErrUnexpectedEOF):
			// Malformed or empty request bodies from c.ShouldBindJSON
			statusCode = http.StatusBadRequest
			userMessage = "Invalid request body."

		default:
			if validationErrs, ok := err.(validator.ValidationErrors); ok {
				// Handle validation errors from c.ShouldBindJSON
				statusCode = http.StatusBadRequest
				userMessage = "Validation failed. Please check your input."
				for _, fe := range validationErrs {
					customLog.Printf("Validation Error: Field %s failed on %s", fe.Field(), fe.Tag())
				}
				break
			}
			// Assume internal server error for unexpected types
			statusCode = http.StatusInternalServerError
			userMessage = "An unexpected internal server error occurred."
			customLog.Warnf("Unhandled error type: %T, Error: %v", err, err)
		}

		// Abort execution and send JSON response
		if !c.Writer.Written() {
			body := gin.H{"error": userMessage}
			if details != nil {
				body["details"] = details
			}
			c.AbortWithStatusJSON(statusCode, body)
		} else {
			customLog.Printf("[ErrorHandler] Warning: Response already written before handling error.")
		}
	}
}
