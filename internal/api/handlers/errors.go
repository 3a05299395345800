package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/langchou/drivewayhub/internal/api/tesla"
	"github.com/langchou/drivewayhub/internal/apperr"
	"github.com/langchou/drivewayhub/internal/repository"
)

// respondError 把错误写成 {"error", "code", "details"}
func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := h.classify(err)

	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
		if h.devErrors && appErr.Err != nil {
			body["details"] = appErr.Err.Error()
		}
	} else if appErr.Details != nil {
		body["details"] = appErr.Details
	}

	c.AbortWithStatusJSON(appErr.Status, body)
}

func (h *Handler) classify(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}
	if appErr := apperr.FromDatabase(err); appErr != nil {
		return appErr
	}
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("Resource not found")
	}

	var providerErr *tesla.ProviderError
	if errors.As(err, &providerErr) {
		return apperr.Upstream(apperr.CodeTeslaError, "Tesla API request failed", err)
	}
	return apperr.Upstream(apperr.CodeInternal, "Internal server error", err)
}

// bind 解析 JSON 请求体，校验失败时直接写响应并返回 false
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return apperr.Validation("", "Request validation failed").WithDetails(map[string]any{"fields": fields})
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return apperr.Validation("", "Malformed JSON request body")
	}
	return apperr.Validation("", "Invalid request body")
}
