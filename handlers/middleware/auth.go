package middleware

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

// RequireAPIKey rejects requests whose X-API-Key header doesn't match
// apiKey. /api/health is mounted without this middleware.
func RequireAPIKey(apiKey string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.Header.Get("X-API-Key") != apiKey {
			vcerrors.WriteHTTPUnauthorized(w, "invalid or missing X-API-Key header", nil)
			return
		}
		next(w, r, ps)
	}
}
