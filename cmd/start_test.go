package cmd

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medshare/hub/component"
)

// stopRecorder records the order components are stopped in and whether the
// stop context was still live at that point.
type stopRecorder struct {
	name    string
	order   *[]string
	ctxLive *[]bool
}

func (s stopRecorder) Start() error { return nil }

func (s stopRecorder) Stop(ctx context.Context) error {
	*s.order = append(*s.order, s.name)
	*s.ctxLive = append(*s.ctxLive, ctx.Err() == nil)
	return nil
}

func (s stopRecorder) RegisterHttpHandlers(_ *http.ServeMux, _ *http.ServeMux) {}

func TestStopComponents(t *testing.T) {
	var order []string
	var ctxLive []bool
	components := []component.Lifecycle{
		stopRecorder{name: "audit", order: &order, ctxLive: &ctxLive},
		stopRecorder{name: "status", order: &order, ctxLive: &ctxLive},
		stopRecorder{name: "http", order: &order, ctxLive: &ctxLive},
	}

	stopComponents(components)

	t.Run("reverse registration order", func(t *testing.T) {
		assert.Equal(t, []string{"http", "status", "audit"}, order)
	})

	t.Run("stop context is live even after the run context is cancelled", func(t *testing.T) {
		assert.Equal(t, []bool{true, true, true}, ctxLive)
	})
}
