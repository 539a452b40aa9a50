package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// cors builds the CORS middleware. With no origins configured, development
// allows any origin and every other environment denies cross-origin calls.
func (s *Server) cors() func(http.Handler) http.Handler {
	cfg := s.cfg.CORS
	options := cors.Options{
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}

	env := s.cfg.App.Environment
	devLike := env == "" || env == "development" || env == "local"
	allowAny := func(_ *http.Request, origin string) bool { return origin != "" }

	switch {
	case slices.Contains(cfg.AllowedOrigins, "*"):
		if !devLike {
			s.logger.Warn("CORS allows any origin outside development", zap.String("environment", env))
		}
		options.AllowOriginFunc = allowAny
	case len(cfg.AllowedOrigins) > 0:
		options.AllowedOrigins = cfg.AllowedOrigins
	case devLike:
		options.AllowOriginFunc = allowAny
	default:
		// An empty AllowedOrigins list means "*" to go-chi/cors.
		options.AllowOriginFunc = func(*http.Request, string) bool { return false }
		s.logger.Warn("CORS has no allowed origins, cross-origin requests will be denied", zap.String("environment", env))
	}

	return cors.Handler(options)
}
