package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/orderdesk/api/internal/config"
	"github.com/orderdesk/api/internal/handler"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/metrics"
	mw "github.com/orderdesk/api/internal/middleware"
	"github.com/orderdesk/api/internal/ws"
)

// Deps holds everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Log      *logger.Logger
	Metrics  *metrics.Registry
	Hub      *ws.Hub
	Users    handler.UserStore
	Sessions interface {
		handler.SessionManager
		mw.SessionResolver
	}
	Staging handler.StagingServicer
	Archive handler.ArchiveServicer
}

// New creates a Chi router with all application routes wired up.
// The intake POST and the auth endpoints are public; everything else under
// /api requires a session.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Instrument)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	session := mw.Session(d.Sessions, d.Log)

	// WebSocket route (session cookie is sent on the upgrade request)
	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Use(mw.RequireAuth)
		r.Get("/ws/{topic}", ws.ServeWS(d.Hub, d.Config.AllowedOrigins, d.Log))
	})

	orderHandler := handler.NewOrderHandler(d.Staging, d.Hub, d.Log)
	archiveHandler := handler.NewArchiveHandler(d.Archive, d.Hub, d.Log)
	authHandler := handler.NewAuthHandler(d.Users, d.Sessions, d.Config.CookieSecure, d.Log)

	r.Route("/api", func(r chi.Router) {
		r.Use(session)

		authHandler.RegisterRoutes(r)

		// Intake page submits without logging in.
		r.Post("/orders", orderHandler.Create)

		// Protected routes (require a session)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth)
			orderHandler.RegisterRoutes(r)
			archiveHandler.RegisterRoutes(r)
		})
	})

	d.Log.Info(context.Background(), "router initialized")
	return r
}
