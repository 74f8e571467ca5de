// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// isValidID accepts UUIDs and identity-provider UIDs: alphanumerics and '-', at most 64 chars.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			continue
		}
		return false
	}
	return true
}

// pathID reads a path parameter and writes a 400 when it is malformed.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "bad_request", "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

// expectedVersion parses an optional If-Match header carrying the status version the client observed.
func expectedVersion(c *gin.Context) (*int, bool) {
	raw := strings.Trim(c.GetHeader("If-Match"), `" `)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(c, http.StatusBadRequest, "bad_request", "If-Match must be a status version")
		return nil, false
	}
	return &v, true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps the domain error taxonomy onto HTTP.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(c, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(c, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(c, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrExhausted):
		writeError(c, http.StatusAccepted, "exhausted", err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
