package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediagen/internal/http/handlers"
	"mediagen/internal/middleware"
)

// NewRouter wires every route. staticDir, when set, is served under /static.
func NewRouter(app *handlers.App, staticDir string) http.Handler {
	r := chi.NewRouter()

	locale, origins, perMin := "en", []string{"*"}, 0
	if app.Config != nil {
		locale, origins, perMin = app.Config.DefaultLocale, app.Config.CORSAllowedOrigins, app.Config.RateLimitPerMin
	}
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(origins),
		middleware.I18N(locale),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(perMin, time.Minute))

		r.Route("/v1/videos", func(r chi.Router) {
			r.Post("/", app.VideosCreate)
			r.Get("/status/{remote_id}", app.VideoRemoteStatus)
		})
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.JobsList)
			r.Get("/{job_id}", app.JobGet)
			r.Delete("/{job_id}", app.JobCancel)
		})
		r.Route("/v1/images", func(r chi.Router) {
			r.Post("/", app.ImagesCreate)
			r.Delete("/{id}", app.ImageDelete)
		})
	})

	if staticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
