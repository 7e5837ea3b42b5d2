package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/predicate"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/report"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/store"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
)

// errorBody：统一错误返回；Labels 仅在标签接口降级时携带
type errorBody struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind"`
	Labels []string `json:"labels,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// 文档注释：错误分类 → HTTP 状态
// 约束：NoFilter 不是错误，调用方应单独返回 204；这里兜底处理同样返回 204。
func classify(err error) (int, string) {
	var qe *store.QueryError
	switch {
	case errors.Is(err, predicate.ErrNoFilter):
		return http.StatusNoContent, "no_filter"
	case errors.Is(err, taxonomy.ErrDataUnavailable):
		return http.StatusServiceUnavailable, "data_unavailable"
	case errors.Is(err, store.ErrResourceExhausted):
		return http.StatusServiceUnavailable, "resource_exhausted"
	case errors.Is(err, predicate.ErrInvalidInput), errors.Is(err, taxonomy.ErrUnknownCategory):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.As(err, &qe):
		return http.StatusUnprocessableEntity, "query_error"
	case errors.Is(err, geo.ErrUnsupportedCRS):
		return http.StatusInternalServerError, "unsupported_crs"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error, labels []string) {
	status, kind := classify(err)
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	if status >= 500 {
		logger.L().Warn("api_error", "path", r.URL.Path, "kind", kind, "err", err, "request_id", logger.RequestID(r.Context()))
	} else {
		logger.L().Debug("api_reject", "path", r.URL.Path, "kind", kind, "err", err, "request_id", logger.RequestID(r.Context()))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("retry-after", "5")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind, Labels: labels})
}
