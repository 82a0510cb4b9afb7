package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/handler/api"
	"github.com/RibomBalt/webgal-llm-puppet/internal/handler/webgal"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	middlewarePkg "github.com/RibomBalt/webgal-llm-puppet/internal/middleware"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/scene"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/producer"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
)

// Deps carries everything the routers need. AI and Turns may be nil when
// the model or the archive is not configured; the affected endpoints then
// degrade instead of the whole service refusing to start.
type Deps struct {
	Config   *config.Config
	Cache    cache.Cache
	Presets  preset.Store
	Sessions *session.Store
	Composer *scene.Composer
	Producer *producer.Producer
	AI       webgal.Answerer
	Turns    api.TurnReader
	Log      *logging.Logger
}

// NewRouter wires the scene endpoints and the JSON API onto one handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(d.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	var apiAI api.Answerer
	if d.AI != nil {
		apiAI = d.AI
	}

	webgalHandler := webgal.New(
		d.Config.Poll,
		d.Config.Preset.DefaultBot,
		d.Cache,
		d.Presets,
		d.Sessions,
		d.AI,
		d.Producer,
		d.Composer,
		d.Log.Sub("webgal"),
	)
	apiHandler := api.New(d.Presets, d.Sessions, apiAI, d.Turns, d.Config.Preset.DefaultBot, d.Log.Sub("api"))

	r.Route("/webgal", webgalHandler.RegisterRoutes)
	r.Route("/api", apiHandler.RegisterRoutes)

	return r
}
