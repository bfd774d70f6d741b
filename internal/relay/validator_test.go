package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPValidatorSuccess(t *testing.T) {
	var gotAuth, gotAccept, gotPath string
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "type": "driver"}`))
	})

	v := NewHTTPValidator(backend.URL, time.Second, zap.NewNop())
	ident, err := v.Validate(context.Background(), "tok-123", ClassUser)
	require.NoError(t, err)

	assert.Equal(t, Identity{ID: "42", Type: "driver"}, ident)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, identityPath, gotPath)
}

func TestHTTPValidatorTypeFallsBackToHint(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "abc"}`))
	})

	v := NewHTTPValidator(backend.URL, time.Second, zap.NewNop())
	ident, err := v.Validate(context.Background(), "tok", "driver")
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "abc", Type: "driver"}, ident)
}

func TestHTTPValidatorDefaultsClass(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "abc"}`))
	})

	v := NewHTTPValidator(backend.URL, time.Second, zap.NewNop())
	ident, err := v.Validate(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Equal(t, ClassUser, ident.Type)
}

func TestHTTPValidatorMissingIdentity(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "null id", body: `{"id": null, "type": "user"}`},
		{name: "not json", body: `<html.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			v := NewHTTPValidator(backend.URL, time.Second, zap.NewNop())
			_, err := v.Validate(context.Background(), "tok", "")
			assert.ErrorIs(t, err, ErrMissingIdentity)
		})
	}
}

func TestHTTPValidatorRejectedToken(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	v := NewHTTPValidator(backend.URL, time.Second, zap.NewNop())
	_, err := v.Validate(context.Background(), "bad", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorBackendFailure(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	v := NewHTTPValidator(backend.URL, time.Second, zap.NewNop())
	_, err := v.Validate(context.Background(), "tok", "")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestHTTPValidatorBackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	v := NewHTTPValidator(url, time.Second, zap.NewNop())
	_, err := v.Validate(context.Background(), "tok", "")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
