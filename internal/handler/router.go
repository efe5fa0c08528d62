package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	conversationHandler "github.com/scholarchat/gateway/internal/handler/conversation"
	"github.com/scholarchat/gateway/internal/handler/events"
	masterHandler "github.com/scholarchat/gateway/internal/handler/master"
	"github.com/scholarchat/gateway/internal/middleware"
	conversationService "github.com/scholarchat/gateway/internal/service/conversation"
)

// NewRouter wires HTTP routes to the conversation controller and the
// upstream master-data lookups.
func NewRouter(ctrl *conversationService.Controller, lookup masterHandler.Lookup, hub *events.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	convHandler := conversationHandler.New(ctrl, log)
	dataHandler := masterHandler.New(lookup, log)

	r.Route("/api", func(api chi.Router) {
		convHandler.RegisterRoutes(api)
		dataHandler.RegisterRoutes(api)
		hub.RegisterRoutes(api)
	})

	return r
}
