package inbound

import (
	"encoding/json"
	"net/http"
)

const (
	WatchPath  = "/watch"
	HealthPath = "/healthz"
)

// NewRouter mounts the watch handler under /watch, with the namespace taken
// from either /watch/{namespace} or /watch?namespace=.
func NewRouter(watch http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET "+WatchPath, watch)
	mux.Handle("GET "+WatchPath+"/{"+NamespacePathValue+"}", watch)
	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}
