package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/livepeer/vodcompress/log"
	"github.com/livepeer/vodcompress/requests"
)

func requestIDFrom(req *http.Request) string {
	return requests.GetRequestID(req)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.LogNoRequestID("failed to write JSON response", "err", err)
	}
}
