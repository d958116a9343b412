package lockclient

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SystemBuilders/LocKey/internal/api"
	"github.com/SystemBuilders/LocKey/internal/nodedir"
	"github.com/SystemBuilders/LocKey/internal/reservation"
)

func newTestClient(t *testing.T) *SimpleClient {
	t.Helper()

	net := nodedir.NewNetwork()
	dir := net.Register(1, nil)
	mgr := reservation.NewManager(dir, zerolog.New(os.Stderr))
	srv := api.NewServer(mgr, zerolog.New(os.Stderr))
	router := srv.SetupRouting(mux.NewRouter())

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	host, port := splitHostPort(t, ts.URL)
	cfg := SimpleConfig{IPAddr: host, PortAddr: port}
	return NewSimpleClient(cfg, zerolog.New(os.Stderr))
}

func splitHostPort(t *testing.T, url string) (string, string) {
	t.Helper()
	url = strings.TrimPrefix(url, "http://")
	idx := strings.LastIndex(url, ":")
	require.True(t, idx > 0)
	return url[:idx], url[idx+1:]
}

func TestSimpleClient_AcquireReleaseRoundtrip(t *testing.T) {
	c := newTestClient(t)

	id, err := c.Create([]byte("payload"))
	require.NoError(t, err)

	granted, err := c.Acquire(id, 0, true, "")
	require.NoError(t, err)
	require.True(t, granted)

	locked, err := c.Status(id)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, c.Release(id))

	locked, err = c.Status(id)
	require.NoError(t, err)
	require.False(t, locked)

	require.NoError(t, c.Destroy(id))
}

func TestSimpleClient_AcquireRejectsBadAcqType(t *testing.T) {
	c := newTestClient(t)

	id, err := c.Create(nil)
	require.NoError(t, err)

	_, err = c.Acquire(id, 0, true, "not-a-real-type")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}
