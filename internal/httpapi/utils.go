package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
)

// HeaderUserID 调用方身份（鉴权不在本服务范围内）
const HeaderUserID = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// requireUser 取出 X-User-ID 放入 context
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if uid == "" || len(uid) > 64 {
			writeAppError(w, r, apperr.NewValidation(HeaderUserID, "required, at most 64 characters"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON 空 body 视为零值
func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return apperr.NewValidation("body", err.Error())
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return parseInt64Param(name, chi.URLParam(r, name))
}

func parseInt64Param(name, value string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, apperr.NewValidation(name, "must be an integer")
	}
	return v, nil
}

// queryInt 缺省时返回 def
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.NewValidation(name, "must be an integer")
	}
	return v, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
