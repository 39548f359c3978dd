package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/evalgate/evalgate/pkg/errors"
)

// respondError maps an application error to its HTTP status and writes the
// JSON error body.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeAlreadyExists, apperrors.CodeConflict:
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{"error": appErr.Message, "code": string(appErr.Code)})
}
