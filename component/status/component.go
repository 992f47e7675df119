package status

import (
	"context"
	"net/http"

	"github.com/medshare/hub/component"
)

var _ component.Lifecycle = (*Component)(nil)

type Component struct {
}

// New creates an instance of the status component, which provides a simple health check endpoint.
func New() *Component {
	return &Component{}
}

func (c Component) Start() error {
	// Nothing to do
	return nil
}

func (c Component) Stop(ctx context.Context) error {
	// Nothing to do
	return nil
}

func (c Component) RegisterHttpHandlers(publicMux *http.ServeMux, internalMux *http.ServeMux) {
	publicMux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	internalMux.HandleFunc("GET /status/build", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(BuildInfo()))
	})
}
