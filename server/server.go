package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/internal/config"
)

type Server struct {
	env    string // Environment (e.g., "DEV", "production")
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.AuthService
	repos  auth.Repos
}

func New(config config.Config, repos auth.Repos, authService *auth.AuthService) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		config: config,
		repos:  repos,
		auth:   authService,
	}
	s.env = config.GetEnv()

	// Bootstrap: ensure an admin principal exists
	ctx := context.Background()
	if err := s.BootstrapAdmin(ctx); err != nil {
		return nil, fmt.Errorf("[Server New] failed to bootstrap admin principal: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
