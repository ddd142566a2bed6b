package httpx

import (
	"io"
	"net/http"

	apperrors "github.com/parlorchat/parlor/internal/errors"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// readyHandler reports 503 until the session has received its first identity event.
func readyHandler(svc SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := svc.Status()
		if !status.Known() {
			WriteAppError(w, apperrors.Unavailable("session state not yet known"))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "session": status.String()})
	}
}
