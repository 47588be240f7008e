package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/soaringjerry/kalpha/internal/utils"
)

// writeError renders the API error body {"error": code, "message": text}
// with text taken from the catalog key "error.<code>" in the request locale.
func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	locale := LocaleFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": utils.T(locale, "error."+code),
	})
}
