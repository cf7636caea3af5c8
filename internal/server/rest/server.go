// Package rest exposes the forms server over HTTP/JSON.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/cradle5/cradlesync/internal/server/services"
	"github.com/gorilla/mux"
)

type Server struct {
	address         string
	users           *services.UserService
	forms           *services.FormService
	lookups         *services.LookupService
	logger          logging.Logger
	shutdownTimeout time.Duration
}

func NewServer(a string, l logging.Logger, us *services.UserService, fs *services.FormService, ls *services.LookupService, shutdownTimeout time.Duration) *Server {
	return &Server{
		address:         a,
		logger:          l.With("module", "rest_server"),
		users:           us,
		forms:           fs,
		lookups:         ls,
		shutdownTimeout: shutdownTimeout,
	}
}

// Router builds the route table. Everything except ping and the token
// endpoints requires a bearer access token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	api.HandleFunc("/auth/token", s.handleToken).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireAccessToken)
	authed.HandleFunc("/forms/{formId:[0-9]+}/objects", s.handleSubmit).Methods(http.MethodPost)
	authed.HandleFunc("/submissions/{id}", s.handleSubmission).Methods(http.MethodGet)
	authed.HandleFunc("/objects/{id:[0-9]+}", s.handleObject).Methods(http.MethodGet)
	authed.HandleFunc("/enums", s.handleEnums).Methods(http.MethodGet)
	authed.HandleFunc("/lookups/{name}", s.handleLookup).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
