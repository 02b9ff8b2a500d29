package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/disclosure"
	"github.com/qrmenu/menu-relay/identity"
	"github.com/qrmenu/menu-relay/internal/config"
	"github.com/qrmenu/menu-relay/payment"
	"github.com/qrmenu/menu-relay/stepup"
	"github.com/rs/zerolog/log"
)

// Services holds every component the HTTP layer dispatches to.
type Services struct {
	Verifier   *identity.Verifier
	StepUp     *stepup.Manager
	Gate       *disclosure.Gate
	Settings   *disclosure.Settings
	Relay      *payment.Relay
	Reconciler *payment.Reconciler
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services
}

func New(config config.Config, services Services) (*Server, error) {
	switch {
	case services.Verifier == nil:
		return nil, errors.New("[Server New] identity verifier is required")
	case services.StepUp == nil:
		return nil, errors.New("[Server New] step-up manager is required")
	case services.Gate == nil:
		return nil, errors.New("[Server New] disclosure gate is required")
	case services.Settings == nil:
		return nil, errors.New("[Server New] credential settings are required")
	case services.Relay == nil:
		return nil, errors.New("[Server New] payment relay is required")
	case services.Reconciler == nil:
		return nil, errors.New("[Server New] payment reconciler is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		services: services,
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
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s%s%s] %s", color, paddedMethod, ResetColor, path)
}
