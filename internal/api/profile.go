package api

import (
	"net/http"
	"strings"

	"github.com/licitaradar/licitaradar/internal/profile"
)

var profileKeys = map[string]bool{
	profile.KeyName:        true,
	profile.KeyDescription: true,
	profile.KeyInclude:     true,
	profile.KeyExclude:     true,
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// handlePatchProfile accepts {"profile.include": [...], ...}. Unknown keys
// are rejected before anything is written.
func handlePatchProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := decodeBody(w, r, &fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no fields to update")
			return
		}
		for key, value := range fields {
			if !profileKeys[key] {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown profile key %q", key)
				return
			}
			if err := validateProfileValue(key, value); err != "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %s", key, err)
				return
			}
		}

		for key, value := range fields {
			if err := deps.Profile.SetField(key, value); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to set field %q: %v", key, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func validateProfileValue(key string, value any) string {
	switch key {
	case profile.KeyInclude, profile.KeyExclude:
		list, ok := value.([]any)
		if !ok {
			return "must be a list of strings"
		}
		for _, v := range list {
			if s, ok := v.(string); !ok || strings.TrimSpace(s) == "" {
				return "must be a list of non-empty strings"
			}
		}
	default:
		if _, ok := value.(string); !ok {
			return "must be a string"
		}
	}
	return ""
}
