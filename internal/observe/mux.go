package observe

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Router is the subset of http.ServeMux that Mux wraps.
type Router interface {
	Handle(pattern string, handler http.Handler)
	http.Handler
}

// Mux instruments each registered handler, naming its spans after the
// route pattern rather than the request URL so that path parameters do not
// inflate span cardinality.
type Mux struct {
	routes Router
}

func NewMux(routes Router) *Mux {
	return &Mux{routes: routes}
}

func (m *Mux) Handle(pattern string, handler http.Handler) {
	_, route := splitPattern(pattern)

	m.routes.Handle(pattern, otelhttp.NewHandler(handler, route,
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + operation
		}),
	))
}

func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.routes.ServeHTTP(w, r)
}

// splitPattern separates the method from a ServeMux pattern such as
// "POST /translate". A pattern without a recognised method is returned
// whole as the route.
func splitPattern(pattern string) (method, route string) {
	method, route, found := strings.Cut(pattern, " ")
	if !found || !isMethod(method) {
		return "", pattern
	}
	return method, strings.TrimLeft(route, " ")
}

func isMethod(s string) bool {
	switch s {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodConnect,
		http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
