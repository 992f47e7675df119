package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/component/tracing"
)

// Config holds the listen addresses for the HTTP servers.
type Config struct {
	// PublicAddress serves callers outside the trust boundary.
	PublicAddress string `koanf:"publicaddress"`
	// InternalAddress serves the decision endpoint, consent and relationship
	// management, audit queries and metrics.
	InternalAddress string `koanf:"internaladdress"`
}

func DefaultConfig() Config {
	return Config{
		PublicAddress:   ":8080",
		InternalAddress: ":8081",
	}
}

var _ component.Lifecycle = (*Component)(nil)

type Component struct {
	config         Config
	publicMux      *http.ServeMux
	publicServer   *http.Server
	internalMux    *http.ServeMux
	internalServer *http.Server
}

// New creates an instance of the HTTP component, which handles the HTTP interfaces for the application.
func New(config Config, publicMux *http.ServeMux, internalMux *http.ServeMux) *Component {
	if config.PublicAddress == "" {
		config.PublicAddress = DefaultConfig().PublicAddress
	}
	if config.InternalAddress == "" {
		config.InternalAddress = DefaultConfig().InternalAddress
	}
	return &Component{
		config:      config,
		publicMux:   publicMux,
		internalMux: internalMux,
	}
}

func (c *Component) Start() error {
	c.publicServer = &http.Server{
		Addr:    c.config.PublicAddress,
		Handler: tracing.WrapHandler(c.publicMux, "public"),
	}
	c.internalServer = &http.Server{
		Addr:    c.config.InternalAddress,
		Handler: tracing.WrapHandler(c.internalMux, "internal"),
	}
	log.Info().Msgf("Starting HTTP servers (public-address: %s, internal-address: %s)", c.publicServer.Addr, c.internalServer.Addr)
	go func() {
		if err := c.publicServer.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("Failed to start public HTTP server")
			}
		}
	}()
	go func() {
		if err := c.internalServer.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("Failed to start internal HTTP server")
			}
		}
	}()
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	if err := c.publicServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown public HTTP server: %w", err)
	}
	if err := c.internalServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown internal HTTP server: %w", err)
	}
	return nil
}

func (c *Component) RegisterHttpHandlers(_ *http.ServeMux, _ *http.ServeMux) {
	// Nothing to do here
}
