package httpserver

import (
	"net/http"

	"meterflow/backend/services/meter-service/internal/http/handlers"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	SeriesHandlers *handlers.SeriesHandlers
	HealthHandler  http.HandlerFunc
	// SeriesSocket serves live update subscriptions; optional.
	SeriesSocket http.HandlerFunc
}

// NewRouter wires HTTP routes.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))

	series := deps.SeriesHandlers
	mux.Handle("/api/series", method(http.MethodGet, http.HandlerFunc(series.List)))
	mux.Handle("/api/series/export", method(http.MethodGet, http.HandlerFunc(series.Export)))
	mux.Handle("/api/series/upload", method(http.MethodPost, http.HandlerFunc(series.Upload)))
	mux.Handle("/api/series/backend", method(http.MethodPost, http.HandlerFunc(series.IngestBackend)))
	mux.Handle("/api/series/reload", method(http.MethodPost, http.HandlerFunc(series.Reload)))
	mux.Handle("/api/series/clear", method(http.MethodPost, http.HandlerFunc(series.Clear)))

	if deps.SeriesSocket != nil {
		mux.Handle("/ws/series", method(http.MethodGet, deps.SeriesSocket))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
