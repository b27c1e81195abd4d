package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuqie6/QuestLog/internal/dto"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
)

// statusForKind 错误类别到 HTTP 状态码的映射，新增 Kind 时必须补充
func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindPlayerStateNotFound:
		return http.StatusNotFound
	case apperr.KindFutureDate:
		return http.StatusUnprocessableEntity
	case apperr.KindAlreadyConfirmed,
		apperr.KindInvalidOperation,
		apperr.KindAlreadyUnlocked,
		apperr.KindInsufficientSP,
		apperr.KindPrerequisiteNotMet:
		return http.StatusConflict
	case apperr.KindRetryable:
		return http.StatusServiceUnavailable
	case apperr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func toErrorDTO(err error) dto.ErrorDTO {
	var e *apperr.Error
	if errors.As(err, &e) {
		return dto.ErrorDTO{Kind: string(e.Kind), Detail: e.Detail}
	}
	return dto.ErrorDTO{Kind: string(apperr.KindInternal)}
}

// writeAppError 按错误类别写响应；5xx 记录日志，业务拒绝不记录
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	body := toErrorDTO(err)
	status := statusForKind(apperr.Kind(body.Kind))
	if status >= http.StatusInternalServerError {
		slog.Error("请求处理失败",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"status", status,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, dto.ErrorResponse{Error: body})
}
