package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SystemBuilders/LocKey/internal/nodedir"
	"github.com/SystemBuilders/LocKey/internal/reservation"
)

func newTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	net := nodedir.NewNetwork()
	dir := net.Register(1, nil)
	mgr := reservation.NewManager(dir, zerolog.New(os.Stderr))

	s := NewServer(mgr, zerolog.New(os.Stderr))
	r := s.SetupRouting(mux.NewRouter())
	return s, r
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateAcquireReleaseDestroy(t *testing.T) {
	_, r := newTestServer(t)

	rec := doJSON(t, r, "POST", "/create", CreateRequest{Payload: []byte("hello")})
	require.Equal(t, 200, rec.Code)

	var created CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.ID != 0)

	rec = doJSON(t, r, "POST", "/acquire", AcquireRequest{ID: created.ID, Mode: 0, Exclusive: true})
	require.Equal(t, 200, rec.Code)

	var acquired AcquireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acquired))
	require.True(t, acquired.Granted)

	rec = doJSON(t, r, "POST", "/status", StatusRequest{ID: created.ID})
	require.Equal(t, 200, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Locked)

	rec = doJSON(t, r, "POST", "/release", ReleaseRequest{ID: created.ID})
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, r, "POST", "/status", StatusRequest{ID: created.ID})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Locked)

	rec = doJSON(t, r, "POST", "/destroy", DestroyRequest{ID: created.ID})
	require.Equal(t, 200, rec.Code)
}

func TestServer_AcquireRejectsUnknownAcqType(t *testing.T) {
	_, r := newTestServer(t)

	rec := doJSON(t, r, "POST", "/create", CreateRequest{})
	var created CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, r, "POST", "/acquire", AcquireRequest{ID: created.ID, AcqType: "bogus"})
	require.Equal(t, 400, rec.Code)
}
