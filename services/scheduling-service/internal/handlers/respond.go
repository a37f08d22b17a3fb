package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the apperr kind onto a status code. Internal errors are logged and
// answered with fallback so driver details stay out of responses.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var appErr *apperr.Error
	msg := fallback
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		http.Error(w, msg, http.StatusNotFound)
	case apperr.KindBadRequest:
		http.Error(w, msg, http.StatusBadRequest)
	case apperr.KindConflict:
		http.Error(w, msg, http.StatusConflict)
	case apperr.KindForbidden:
		http.Error(w, msg, http.StatusForbidden)
	default:
		logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// parseOptionalTime parses an RFC3339 value; empty input yields the zero time.
func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseLimit(r *http.Request, fallback, max int) int {
	limit := fallback
	if raw := queryParam(r, "limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= max {
			limit = n
		}
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
