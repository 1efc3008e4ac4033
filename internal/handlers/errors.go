package handlers

import (
	"errors"
	"net/http"

	"pragrisk/internal/hierarchy"
	"pragrisk/internal/middleware"
	"pragrisk/internal/models"
	"pragrisk/internal/service"
	"pragrisk/internal/store"

	"github.com/gin-gonic/gin"
)

// DegradedHeader is set on a successful mutation that did not reach the
// search index.
const DegradedHeader = "X-Pragrisk-Degraded"

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrMissingReference),
		errors.Is(err, hierarchy.ErrInvalidHierarchy):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrReferenced),
		errors.Is(err, hierarchy.ErrCycleSuspected):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log := middleware.Logger(c)
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// checkWrite splits a mutation error into a hard failure, which is written
// to the response, and a degraded success, which only sets a header.
func checkWrite(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	if service.IsDegraded(err) {
		c.Header(DegradedHeader, "search-index")
		return true
	}
	writeError(c, err)
	return false
}
