package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"campchain/gateway/client"
	"campchain/gateway/middleware"
)

// Config assembles the gateway router from its middleware and the node
// client handlers talk through.
type Config struct {
	Node          *client.Client
	Verifier      string
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	WriteScopes   []string
}

func New(cfg Config) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	campaigns := newCampaignRoutes(cfg.Node, cfg.Verifier)
	r.Route("/v1/campaigns", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("campaigns"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("campaigns"))
		}

		sr.Get("/", campaigns.list)
		sr.Get("/{id}", campaigns.get)
		sr.Get("/{id}/info", campaigns.info)
		sr.Get("/{id}/participants/{wallet}", campaigns.participant)

		sr.Group(func(mr chi.Router) {
			if cfg.Authenticator != nil {
				mr.Use(cfg.Authenticator.Middleware(cfg.WriteScopes...))
			}
			mr.Post("/", campaigns.create)
			mr.Post("/{id}/join", campaigns.join)
			mr.Post("/{id}/verify/{wallet}", campaigns.verify)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}
