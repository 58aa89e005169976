package response

import (
	"log"
	"net/http"

	"plumberleads/internal/domain"

	"github.com/gin-gonic/gin"
)

// ErrorBody documents the failure envelope.
type ErrorBody struct {
	Success bool `json:"success" example:"false"`
	Error   struct {
		Code    string      `json:"code" example:"LEAD_UNAVAILABLE"`
		Message string      `json:"message" example:"lead no longer available"`
		Details interface{} `json:"details,omitempty"`
	} `json:"error"`
}

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// FromError writes the envelope for err. Domain errors map by kind; anything
// else is a 500 and is recorded on the gin context for the error logger.
func FromError(c *gin.Context, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		_ = c.Error(err)
		log.Printf("level=error msg=unhandled error path=%s err=%v", c.Request.URL.Path, err)
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}

	status := StatusFor(de.Kind)
	code := de.Code
	if code == "" {
		code = defaultCode(de.Kind)
	}
	if len(de.Fields) > 0 {
		ErrorWithDetails(c, status, code, de.Error(), de.Fields)
		return
	}
	Error(c, status, code, de.Error())
}

func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidTransition:
		return http.StatusConflict
	case domain.KindPrecondition:
		return http.StatusUnprocessableEntity
	case domain.KindForbidden, domain.KindSignature:
		return http.StatusForbidden
	case domain.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func defaultCode(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindValidation:
		return "VALIDATION_ERROR"
	case domain.KindNotFound:
		return "NOT_FOUND"
	case domain.KindConflict:
		return "CONFLICT"
	case domain.KindPrecondition:
		return "PRECONDITION_FAILED"
	case domain.KindForbidden:
		return "FORBIDDEN"
	case domain.KindSignature:
		return "INVALID_SIGNATURE"
	case domain.KindGateway:
		return "GATEWAY_ERROR"
	case domain.KindInvalidTransition:
		return "INVALID_TRANSITION"
	default:
		return "INTERNAL_ERROR"
	}
}
