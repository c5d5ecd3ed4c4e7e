package handlers

import (
	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/vodcompress/handlers/content"
	"github.com/livepeer/vodcompress/handlers/middleware"
)

// NewRouter wires every intake API route behind auth, CORS, and rate-limit
// middleware (health and the content server are exempt from auth), plus the
// range-aware static content server.
func NewRouter(c *Collection) *httprouter.Router {
	r := httprouter.New()

	cors := middleware.AllowCORS(c.Config.AllowedOrigins)
	limiter := middleware.NewRateLimiter()

	authed := func(h httprouter.Handle) httprouter.Handle {
		return limiter.Limit(cors(middleware.RequireAPIKey(c.Config.APIKey, h)))
	}
	public := func(h httprouter.Handle) httprouter.Handle {
		return limiter.Limit(cors(h))
	}

	r.POST("/api/compress", authed(c.Compress()))
	r.GET("/api/status", authed(c.Status()))
	r.GET("/api/health", public(c.Health()))
	r.POST("/api/webhook", authed(c.WebhookAdmin()))
	r.GET("/api/admin/jobs", authed(c.AdminJobs()))

	contentServer := content.NewServer(c.Config.MediaContentDir)
	r.GET("/content/*filepath", contentServer.Handle)
	r.HEAD("/content/*filepath", contentServer.Handle)

	return r
}
