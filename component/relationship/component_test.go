package relationship

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateAll() { f.calls++ }

func newTestComponent(t *testing.T) (*Component, *fakeInvalidator) {
	t.Helper()
	cmp, err := New(Config{
		DatabasePath: filepath.Join(t.TempDir(), "relationships.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cmp.Stop(context.Background())
	})
	invalidator := &fakeInvalidator{}
	cmp.SetInvalidator(invalidator)
	return cmp, invalidator
}

func TestComponent_RelationshipLifecycle(t *testing.T) {
	ctx := context.Background()
	cmp, invalidator := newTestComponent(t)

	t.Run("no relationship initially", func(t *testing.T) {
		active, err := cmp.HasActiveRelationship(ctx, 10, 50)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("start makes the relationship active and invalidates", func(t *testing.T) {
		require.NoError(t, cmp.StartRelationship(ctx, 10, 50, "PRIMARY_CARE"))
		assert.Equal(t, 1, invalidator.calls)

		active, err := cmp.HasActiveRelationship(ctx, 10, 50)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("other pairs are unaffected", func(t *testing.T) {
		active, err := cmp.HasActiveRelationship(ctx, 10, 51)
		require.NoError(t, err)
		assert.False(t, active)

		active, err = cmp.HasActiveRelationship(ctx, 11, 50)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("end deactivates the relationship and invalidates", func(t *testing.T) {
		require.NoError(t, cmp.EndRelationship(ctx, 10, 50))
		assert.Equal(t, 2, invalidator.calls)

		active, err := cmp.HasActiveRelationship(ctx, 10, 50)
		require.NoError(t, err)
		assert.False(t, active)
	})
}

func TestComponent_HTTPHandlers(t *testing.T) {
	cmp, _ := newTestComponent(t)
	mux := http.NewServeMux()
	cmp.RegisterHttpHandlers(http.NewServeMux(), mux)

	t.Run("start relationship", func(t *testing.T) {
		body := bytes.NewBufferString(`{"providerId": 10, "patientId": 50, "relationshipType": "SPECIALIST"}`)
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/relationships", body))
		assert.Equal(t, http.StatusCreated, recorder.Code)

		active, err := cmp.HasActiveRelationship(context.Background(), 10, 50)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("missing ids rejected", func(t *testing.T) {
		body := bytes.NewBufferString(`{"providerId": 10}`)
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/relationships", body))
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("end relationship", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/relationships/end?provider=10&patient=50", nil))
		assert.Equal(t, http.StatusNoContent, recorder.Code)

		active, err := cmp.HasActiveRelationship(context.Background(), 10, 50)
		require.NoError(t, err)
		assert.False(t, active)
	})
}
