package relay

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Tanvirul-I/Collab-Notes/internal/httputil"
	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
)

// Routes builds the process's single HTTP surface: the websocket
// endpoint at /realtime plus the two small JSON endpoints. Every other
// path is a 404.
func Routes(h *Handler, mc *metrics.Collector) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/realtime", h.ServeWS)
	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, mc.Snapshot())
	}).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}
