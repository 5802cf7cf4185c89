package card

import (
	"crypto/subtle"
	"net/http"
)

// Server handles HTTP requests for cards and statements
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authRequired reports whether any credential was configured
func (a BasicAuth) authRequired() bool {
	return a.Username != "" || a.Password != ""
}

// authenticate checks basic auth credentials in constant time
func (s *Server) authenticate(r *http.Request) bool {
	if !s.basicAuth.authRequired() {
		return true
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Card Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// Statements
	s.mux.HandleFunc("POST /api/statements/scan", s.requireAuth(s.handleScanStatement))

	// Cards (most specific paths first)
	s.mux.HandleFunc("POST /api/cards/{id}/statement", s.requireAuth(s.handleScanAndApply))
	s.mux.HandleFunc("PATCH /api/cards/{id}/fields", s.requireAuth(s.handleApplyFields))
	s.mux.HandleFunc("GET /api/cards/{id}", s.requireAuth(s.handleGetCard))
	s.mux.HandleFunc("DELETE /api/cards/{id}", s.requireAuth(s.handleDeleteCard))
	s.mux.HandleFunc("GET /api/cards", s.requireAuth(s.handleListCards))
	s.mux.HandleFunc("POST /api/cards", s.requireAuth(s.handleCreateCard))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
