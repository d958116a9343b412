package lockclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/SystemBuilders/LocKey/internal/api"
	"github.com/SystemBuilders/LocKey/internal/lockclient/session"
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

var _ Config = (*SimpleConfig)(nil)

// SimpleConfig implements Config.
type SimpleConfig struct {
	IPAddr   string
	PortAddr string
}

// IP returns the IP from SimpleConfig.
func (scfg *SimpleConfig) IP() string { return scfg.IPAddr }

// Port returns the port from SimpleConfig.
func (scfg *SimpleConfig) Port() string { return scfg.PortAddr }

func (scfg *SimpleConfig) baseURL() string {
	return fmt.Sprintf("%s:%s", scfg.IPAddr, scfg.PortAddr)
}

var _ Client = (*SimpleClient)(nil)

// SimpleClient implements Client against a node's internal/api HTTP
// surface. Every call carries this client's session ID in an X-Session-ID
// header, so a chain of calls can be traced back to the process that
// issued them.
type SimpleClient struct {
	cfg     SimpleConfig
	session session.Session
	http    *http.Client
	log     zerolog.Logger
}

// NewSimpleClient returns a SimpleClient targeting cfg, with a fresh
// session identity.
func NewSimpleClient(cfg SimpleConfig, log zerolog.Logger) *SimpleClient {
	sess := session.New()
	return &SimpleClient{
		cfg:     cfg,
		session: sess,
		http:    &http.Client{},
		log:     log.With().Str("component", "lockclient").Str("session", session.String(sess)).Logger(),
	}
}

// Create implements Client.
func (sc *SimpleClient) Create(payload []byte) (rsrvid.RsrvId, error) {
	var resp api.CreateResponse
	if err := sc.post("/create", api.CreateRequest{Payload: payload}, &resp); err != nil {
		return rsrvid.NoRsrv, err
	}
	return resp.ID, nil
}

// Acquire implements Client.
func (sc *SimpleClient) Acquire(id rsrvid.RsrvId, mode uint32, exclusive bool, acqType string) (bool, error) {
	var resp api.AcquireResponse
	req := api.AcquireRequest{ID: id, Mode: mode, Exclusive: exclusive, AcqType: acqType}
	if err := sc.post("/acquire", req, &resp); err != nil {
		return false, err
	}
	return resp.Granted, nil
}

// Release implements Client.
func (sc *SimpleClient) Release(id rsrvid.RsrvId) error {
	return sc.post("/release", api.ReleaseRequest{ID: id}, nil)
}

// Destroy implements Client.
func (sc *SimpleClient) Destroy(id rsrvid.RsrvId) error {
	return sc.post("/destroy", api.DestroyRequest{ID: id}, nil)
}

// Status implements Client.
func (sc *SimpleClient) Status(id rsrvid.RsrvId) (bool, error) {
	var resp api.StatusResponse
	if err := sc.post("/status", api.StatusRequest{ID: id}, &resp); err != nil {
		return false, err
	}
	return resp.Locked, nil
}

func (sc *SimpleClient) post(path string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", sc.cfg.baseURL(), path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", session.String(sc.session))

	resp, err := sc.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		sc.log.Warn().Int("status", resp.StatusCode).Bytes("body", msg).Msg("unexpected response")
		return ErrUnexpectedStatus
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
