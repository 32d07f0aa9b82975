package router

import (
	"net/http"
	"slices"
	"strings"
	"sync"
)

// fallbackPattern is the catch-all the mux reports for unmatched requests.
const fallbackPattern = "/"

// Route is one registered method and pattern.
type Route struct {
	Method  string
	Pattern string
}

func (rt Route) String() string {
	return rt.Method + " " + rt.Pattern
}

// FallbackFunc answers requests no route matched. allowed is empty when
// the path is unknown and lists the registered methods when only the
// method was wrong.
type FallbackFunc func(w http.ResponseWriter, r *http.Request, allowed []string)

// Router wraps http.ServeMux with middleware chaining and keeps a table of
// every bridge route. Middleware runs after the mux has matched, so
// r.Pattern is set inside every handler.
type Router struct {
	mux   *http.ServeMux
	chain []Middleware
	table *routeTable
}

type routeTable struct {
	mu     sync.Mutex
	routes []Route
}

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// New creates a new Router with optional global middleware
func New(middleware ...Middleware) *Router {
	return &Router{
		mux:   http.NewServeMux(),
		chain: middleware,
		table: &routeTable{},
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodGet, pattern, handler, middleware...)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodPost, pattern, handler, middleware...)
}

// Put registers a PUT route
func (r *Router) Put(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodPut, pattern, handler, middleware...)
}

// Delete registers a DELETE route
func (r *Router) Delete(pattern string, handler http.HandlerFunc, middleware ...Middleware) {
	r.Handle(http.MethodDelete, pattern, handler, middleware...)
}

// Handle registers a route with explicit method
func (r *Router) Handle(method, pattern string, handler http.Handler, middleware ...Middleware) {
	r.mux.Handle(method+" "+pattern, r.wrap(handler, middleware))

	r.table.mu.Lock()
	r.table.routes = append(r.table.routes, Route{Method: method, Pattern: pattern})
	r.table.mu.Unlock()
}

// Fallback answers every request that matches no registered route. It
// replaces the mux's plain-text 404 and 405 replies, so fn is told which
// methods the path does accept.
func (r *Router) Fallback(fn FallbackFunc) {
	h := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		allowed := r.allowedMethods(req)
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
		}
		fn(w, req, allowed)
	})
	r.mux.Handle(fallbackPattern, r.wrap(h, nil))
}

// Routes lists every registered route, sorted by pattern then method.
func (r *Router) Routes() []Route {
	r.table.mu.Lock()
	routes := slices.Clone(r.table.routes)
	r.table.mu.Unlock()

	slices.SortFunc(routes, func(a, b Route) int {
		if c := strings.Compare(a.Pattern, b.Pattern); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	return routes
}

// allowedMethods asks the mux which registered methods would have matched
// req's path.
func (r *Router) allowedMethods(req *http.Request) []string {
	var allowed []string
	tried := map[string]bool{}
	for _, rt := range r.Routes() {
		if tried[rt.Method] {
			continue
		}
		tried[rt.Method] = true
		alt := req.Clone(req.Context())
		alt.Method = rt.Method
		if _, pattern := r.mux.Handler(alt); pattern != "" && pattern != fallbackPattern {
			allowed = append(allowed, rt.Method)
		}
	}
	slices.Sort(allowed)
	return allowed
}

// wrap applies middleware to a handler in reverse order
func (r *Router) wrap(handler http.Handler, middleware []Middleware) http.Handler {
	combined := append(slices.Clone(r.chain), middleware...)
	slices.Reverse(combined)

	result := handler
	for _, m := range combined {
		result = m(result)
	}
	return result
}

// Group creates a sub-router with additional middleware
func (r *Router) Group(middleware ...Middleware) *Router {
	return &Router{
		mux:   r.mux,
		chain: append(slices.Clone(r.chain), middleware...),
		table: r.table,
	}
}
