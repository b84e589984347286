package pprof

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/database64128/sctptx-go/tslogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceServesIndex(t *testing.T) {
	logger := tslogtest.Config{}.NewTestLogger(t)
	s := Config{Enabled: true, ListenAddress: "127.0.0.1:0"}.NewService(logger)
	assert.Equal(t, "pprof", s.String())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	resp, err := http.Get("http://" + s.Addr().String() + "/debug/pprof/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "goroutine")
}

func TestServiceBadNetwork(t *testing.T) {
	logger := tslogtest.Config{}.NewTestLogger(t)
	s := Config{ListenNetwork: "bogus", ListenAddress: "127.0.0.1:0"}.NewService(logger)
	assert.Error(t, s.Start(context.Background()))
}
