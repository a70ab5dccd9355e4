package internal

import (
	"net/http"

	"crawlerd/internal/controllers"
	"crawlerd/internal/providers"
)

func InitRoutes(eventsController *controllers.EventsController, apiController *controllers.ApiController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/events", http.HandlerFunc(eventsController.ReceiveEvents))
	routers.Handle("/ping", http.HandlerFunc(eventsController.Ping), http.MethodGet, http.MethodPost)
	routers.Get("/stats", http.HandlerFunc(apiController.GetStats))
	routers.Get("/crawlers", http.HandlerFunc(apiController.GetCrawlers))
	return routers
}
