package internal

import (
	"net/http"

	"referrald/internal/controllers"
	"referrald/internal/providers"
	"referrald/internal/structures"
)

func InitRoutes(apiController *controllers.ApiController, conf *structures.Config) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider(conf)

	routers.Get("/config", http.HandlerFunc(apiController.GetConfig))
	routers.Get("/user", http.HandlerFunc(apiController.GetUser))
	routers.Get("/chain", http.HandlerFunc(apiController.GetChain))
	routers.Get("/active", http.HandlerFunc(apiController.GetActive))
	routers.Get("/events", http.HandlerFunc(apiController.Events))
	routers.Query("/users", http.HandlerFunc(apiController.BatchUsers))
	routers.Post("/bind", http.HandlerFunc(apiController.Bind))
	routers.Post("/reward", http.HandlerFunc(apiController.Reward))
	routers.Post("/activity", http.HandlerFunc(apiController.Activity))
	return routers
}
