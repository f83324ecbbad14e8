package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/provenance-updater/internal/domain"
)

// StatusFor maps a coded error onto an HTTP status.
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeMalformedPayload:
		return http.StatusBadRequest
	case domain.CodeNotFound, domain.CodeUnroutable:
		return http.StatusNotFound
	case domain.CodeReconciliationConflict:
		return http.StatusConflict
	case domain.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError writes err with the status and code derived from it.
func RespondDomainError(c *gin.Context, err error) {
	code := string(domain.CodeOf(err))
	if code == "" {
		code = string(domain.CodeInternal)
	}
	RespondError(c, StatusFor(err), code, err)
}
