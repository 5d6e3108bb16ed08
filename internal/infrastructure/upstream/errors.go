package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sangkips/pharmadesk/pkg/apperror"
)

// normalizeError turns a non-2xx backend response into an AppError. Client
// errors keep their status and the backend's message; server errors become
// 502 with a generic message.
func normalizeError(status int, body []byte) *apperror.AppError {
	cause := fmt.Errorf("upstream responded %d: %s", status, truncate(body, 512))
	if status >= 500 {
		return apperror.Wrap(http.StatusBadGateway, "Upstream service unavailable", cause)
	}

	message, fields := parseErrorBody(body)
	if message == "" && len(fields) > 0 {
		message = fields[0].Message
	}
	if message == "" {
		message = http.StatusText(status)
	}

	appErr := apperror.Wrap(status, message, cause)
	appErr.Errors = fields
	return appErr
}

// parseErrorBody understands {"detail": ...}, {"message": ...},
// {"error": ...} and field maps like {"quantity": ["too large"]}.
func parseErrorBody(body []byte) (string, []apperror.FieldError) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		var list []string
		if json.Unmarshal(body, &list) == nil && len(list) > 0 {
			return list[0], nil
		}
		return "", nil
	}

	for _, key := range []string{"detail", "message", "error"} {
		if raw, ok := obj[key]; ok {
			if s := firstString(raw); s != "" {
				return s, nil
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []apperror.FieldError
	for _, k := range keys {
		if s := firstString(obj[k]); s != "" {
			field := k
			if k == "non_field_errors" {
				field = ""
			}
			fields = append(fields, apperror.FieldError{Field: field, Message: s})
		}
	}
	for _, f := range fields {
		if f.Field == "" {
			return f.Message, fields
		}
	}
	return "", fields
}

func firstString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		for _, item := range list {
			if s := firstString(item); s != "" {
				return s
			}
		}
		return ""
	}
	var nested map[string]json.RawMessage
	if json.Unmarshal(raw, &nested) == nil {
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := firstString(nested[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
