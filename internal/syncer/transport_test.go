package syncer

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_SendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{Name: "test"})

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	assert.NoError(t, tr.Send(req))
}

func TestTransport_SendStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{Name: "test"})

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)

	err = tr.Send(req)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestTransport_Any2xxIsAcknowledged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{Name: "test"})

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	assert.NoError(t, tr.Send(req), "any 2xx counts as acknowledged")
}

func TestTransport_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= 3
		},
	})

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, server.URL, nil)
		require.NoError(t, err)
		err = tr.Send(req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Equal(t, gobreaker.StateOpen, tr.BreakerState())

	req, err := http.NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Send(req), ErrCircuitOpen)
}

func TestTransport_NetworkErrorSurfaces(t *testing.T) {
	tr := NewTransport(TransportConfig{Name: "test"})

	// Closed port: the dial fails before any status code exists.
	req, err := http.NewRequest(http.MethodPost, "http://127.0.0.1:1", nil)
	require.NoError(t, err)

	err = tr.Send(req)
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}
