package providers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"referrald/internal/structures"
)

// MaxCommandBody caps the size of a POST command body.
const MaxCommandBody = 1 << 20

type RouterProviderInterface interface {
	Get(url string, handler http.Handler)
	Post(url string, handler http.Handler)
	Query(url string, handler http.Handler)
	GetRoutes() []structures.Route
}

type RouterProvider struct {
	routes []structures.Route
	token  string
}

func (rp *RouterProvider) Get(url string, handler http.Handler) {
	rp.routes = append(rp.routes, structures.Route{
		Url:     url,
		Handler: methodHandler(http.MethodGet, handler),
	})
}

// Post registers a state-changing command. Commands carry a bounded body and,
// when webServer.commandToken is set, must present it as a bearer token.
func (rp *RouterProvider) Post(url string, handler http.Handler) {
	h := limitBody(handler)
	if rp.token != "" {
		h = requireToken(rp.token, h)
	}
	rp.routes = append(rp.routes, structures.Route{
		Url:     url,
		Handler: methodHandler(http.MethodPost, h),
	})
}

// Query registers a read that takes its arguments in a POST body. The body is
// bounded but no token is required.
func (rp *RouterProvider) Query(url string, handler http.Handler) {
	rp.routes = append(rp.routes, structures.Route{
		Url:     url,
		Handler: methodHandler(http.MethodPost, limitBody(handler)),
	})
}

func (rp *RouterProvider) GetRoutes() []structures.Route {
	return rp.routes
}

func NewRouterProvider(conf *structures.Config) RouterProviderInterface {
	return &RouterProvider{token: conf.WebServer.CommandToken}
}

func methodHandler(method string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func limitBody(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxCommandBody)
		handler.ServeHTTP(w, r)
	})
}

func requireToken(token string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
