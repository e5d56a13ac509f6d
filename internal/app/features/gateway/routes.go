// internal/app/features/gateway/routes.go
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the gateway router. It is mounted at the root and catches
// every path the rest of the app does not serve.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/__agent", func(r chi.Router) {
		r.Get("/client.js", h.ServeClient)
		r.Get("/connect", h.Connect)
		r.Group(func(r chi.Router) {
			if h.Limit != nil {
				r.Use(h.Limit.Middleware(func(req *http.Request) string {
					return req.Header.Get(ClientHeader)
				}))
			}
			r.Post("/message", h.Message)
			r.Post("/push", h.Push)
			r.Post("/notificationclick", h.NotificationClick)
			r.Post("/sync", h.RegisterSync)
			r.Post("/navigated", h.Navigated)
		})
	})
	r.HandleFunc("/*", h.Fetch)
	return r
}
