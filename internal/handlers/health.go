package handlers

import (
	_ "embed"
	"net/http"
	"time"
)

//go:embed static/index.html
var indexHTML []byte

// Index serves the landing page.
func Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

// Health reports that the server is running.
func (rs *Responder) Health(w http.ResponseWriter, r *http.Request) {
	rs.OK(w, http.StatusOK, map[string]string{
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Healthz is the plain liveness check.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
