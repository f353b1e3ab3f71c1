package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bazaarpay/bazaarpay/internal/config"
	"github.com/bazaarpay/bazaarpay/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:           "bazaarpay-test",
		Env:               "test",
		Port:              "0",
		JWTSecret:         "0123456789abcdef0123456789abcdef",
		RequestTimeout:    time.Second,
		AuthFailureLimit:  5,
		AuthFailureWindow: time.Minute,
	}
}

func TestNewServesHealthInDevelopment(t *testing.T) {
	srv, err := New(testConfig(), nil, nil, nil, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case <-srv.guard.Done():
	default:
		t.Fatal("auth failure tracker still running after shutdown")
	}
}

func TestNewRejectsProductionWithoutBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"

	_, err := New(cfg, nil, nil, nil, logging.Discard())
	require.Error(t, err)
}
