package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/starford/pinpress/internal/publish"
	"github.com/starford/pinpress/internal/settings"
	"github.com/starford/pinpress/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// settingsStore, if nil, makes PUT /settings answer 405.
// broker, if non-nil, is mounted at GET /events inside the auth group and
// receives settings.updated after a successful PUT /settings.
// corsOrigins, if non-empty, enables CORS for those origins.
func NewRouter(svc *publish.Service, settingsStore *settings.KV, broker *sse.Broker, authEnabled bool, token string, corsOrigins []string) chi.Router {
	h := NewHandler(svc, settingsStore, broker)

	r := chi.NewRouter()
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-Match"},
			ExposedHeaders: []string{"ETag"},
			MaxAge:         300,
		}))
	}
	r.Use(AuthMiddleware(authEnabled, token))

	// Publication history.
	r.Get("/records", h.ListRecords)
	r.Post("/records", h.PublishRecord)
	r.Delete("/records", h.ClearRecords)
	r.Get("/records/{id}", h.GetRecord)
	r.Put("/records/{id}", h.RepublishRecord)
	r.Delete("/records/{id}", h.DeleteRecord)
	r.Get("/records/{id}/html", h.RecordHTML)

	// Rendering without upload.
	r.Post("/preview", h.Preview)

	// Storage node.
	r.Get("/node", h.Node)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Get("/events", broker.ServeHTTP)
	}

	return r
}
