package http

import (
	"net/http"
	"os"

	"github.com/golang/glog"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

var (
	corsAllowedHeaders = []string{"Content-Type", headerUserID, headerRole}
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
)

// NewRouter mounts the JSON API under /api, the puzzle websocket and the health check.
func NewRouter(exams *ExamHandler, practice *PracticeHandler, ws *WSHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws/puzzles", ws.ServeWS)

	api := r.PathPrefix("/api").Subrouter()
	exams.SetupRoutes(api)
	practice.SetupRoutes(api)
	glog.V(2).Infof("set up routes")
	return r
}

// WithMiddleware adds CORS and an Apache combined access log.
func WithMiddleware(h http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedHeaders(corsAllowedHeaders),
		handlers.AllowedMethods(corsAllowedMethods),
		handlers.AllowedOrigins(allowedOrigins),
	)
	return handlers.CombinedLoggingHandler(os.Stdout, cors(h))
}
