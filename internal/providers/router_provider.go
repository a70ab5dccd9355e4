package providers

import (
	"net/http"

	"github.com/gorilla/mux"

	"crawlerd/internal/structures"
)

type RouterProviderInterface interface {
	Get(url string, handler http.Handler)
	Post(url string, handler http.Handler)
	Handle(url string, handler http.Handler, methods ...string)
	GetRoutes() []structures.Route
	Router(middlewares ...mux.MiddlewareFunc) *mux.Router
}

type RouterProvider struct {
	routes []structures.Route
}

func (rp *RouterProvider) Get(url string, handler http.Handler) {
	rp.Handle(url, handler, http.MethodGet)
}

func (rp *RouterProvider) Post(url string, handler http.Handler) {
	rp.Handle(url, handler, http.MethodPost)
}

func (rp *RouterProvider) Handle(url string, handler http.Handler, methods ...string) {
	for _, method := range methods {
		rp.routes = append(rp.routes, structures.Route{
			Url:     url,
			Method:  method,
			Handler: handler,
		})
	}
}

func (rp *RouterProvider) GetRoutes() []structures.Route {
	return rp.routes
}

// Router builds a gorilla/mux router from the registered routes. A path that
// matches with the wrong method answers 405.
func (rp *RouterProvider) Router(middlewares ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	for _, route := range rp.routes {
		r.Handle(route.Url, route.Handler).Methods(route.Method)
	}
	r.Use(middlewares...)
	return r
}

func NewRouterProvider() RouterProviderInterface {
	return &RouterProvider{}
}
