package datalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/auth"
)

// errNotFound is returned by getJSON on a 404.
var errNotFound = errors.New("not found")

// HTTPConfig configures the HTTP backend. Signer signs publish and
// register requests; without one logd rejects every write.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Signer  auth.Signer
	Clock   func() time.Time
}

// HTTP is a client for the logd daemon.
type HTTP struct {
	Base   string
	HTTP   *http.Client
	signer auth.Signer
	clock  func() time.Time
}

// NewHTTP returns a client for the logd instance at cfg.BaseURL.
func NewHTTP(cfg HTTPConfig) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &HTTP{
		Base:   strings.TrimRight(cfg.BaseURL, "/"),
		HTTP:   &http.Client{Timeout: timeout},
		signer: cfg.Signer,
		clock:  clock,
	}
}

func (c *HTTP) signerFor(address domain.Address) (auth.Signer, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("%w %s: client has no signer", auth.ErrCannotSign, address)
	}
	return c.signer, nil
}

func (c *HTTP) Publish(ctx context.Context, publisher domain.Address, records []domain.Record) (domain.Tx, error) {
	p, err := validatePublish(publisher, records)
	if err != nil {
		return nil, err
	}
	st := auth.NewStamp(c.clock())
	msg, err := auth.PublishMessage(p, st, records)
	if err != nil {
		return nil, err
	}
	signer, err := c.signerFor(p)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(p, msg)
	if err != nil {
		return nil, err
	}
	req := PublishRequest{
		Publisher: p.String(),
		Records:   make([]WireRecord, len(records)),
		Timestamp: st.Timestamp,
		Nonce:     st.Nonce,
		Signature: sig,
	}
	for i, r := range records {
		req.Records[i] = RecordToWire(r)
	}
	var out PublishResponse
	if err := c.send(ctx, http.MethodPost, "/v1/records", req, &out); err != nil {
		return nil, err
	}
	return committedTx{id: out.TxID}, nil
}

func (c *HTTP) ReadAllByPublisher(ctx context.Context, schema domain.SchemaID, publisher domain.Address) ([]domain.Row, error) {
	var out RowsResponse
	path := "/v1/records/" + url.PathEscape(schema.String()) + "/" + url.PathEscape(publisher.Normalize().String())
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	rows := make([]domain.Row, 0, len(out.Rows))
	for _, w := range out.Rows {
		row, err := RowFromWire(w)
		if err != nil {
			return nil, fmt.Errorf("logd row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *HTTP) Register(ctx context.Context, address domain.Address, publicKey domain.X25519Public) (domain.Tx, error) {
	a, err := domain.ParseAddress(address.String())
	if err != nil {
		return nil, err
	}
	signer, err := c.signerFor(a)
	if err != nil {
		return nil, err
	}
	signingKey, err := signer.SigningKey(a)
	if err != nil {
		return nil, err
	}
	st := auth.NewStamp(c.clock())
	msg, err := auth.RegisterMessage(a, st, publicKey, signingKey)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(a, msg)
	if err != nil {
		return nil, err
	}
	entry := RegistryEntry{
		PublicKey:  publicKey.Hex(),
		SigningKey: signingKey.Hex(),
		Timestamp:  st.Timestamp,
		Nonce:      st.Nonce,
		Signature:  sig,
	}
	var out PublishResponse
	if err := c.send(ctx, http.MethodPut, "/v1/registry/"+url.PathEscape(a.String()), entry, &out); err != nil {
		return nil, err
	}
	return committedTx{id: out.TxID}, nil
}

func (c *HTTP) Fetch(ctx context.Context, address domain.Address) (domain.X25519Public, bool, error) {
	var out RegistryEntry
	err := c.getJSON(ctx, "/v1/registry/"+url.PathEscape(address.Normalize().String()), &out)
	if errors.Is(err, errNotFound) {
		return domain.X25519Public{}, false, nil
	}
	if err != nil {
		return domain.X25519Public{}, false, err
	}
	pub, err := domain.ParseX25519Public(out.PublicKey)
	if err != nil {
		return domain.X25519Public{}, false, fmt.Errorf("logd registry %s: %w", address, err)
	}
	return pub, true, nil
}

func (c *HTTP) Close() error {
	c.HTTP.CloseIdleConnections()
	return nil
}

func (c *HTTP) send(ctx context.Context, method, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(method, path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("logd get %s: %w", path, errNotFound)
	}
	if resp.StatusCode/100 != 2 {
		return statusError(http.MethodGet, path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(method, path string, resp *http.Response) error {
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("logd %s %s: %s: %s", method, path, resp.Status, body.Error)
	}
	return fmt.Errorf("logd %s %s: %s", method, path, resp.Status)
}

var _ domain.Backend = (*HTTP)(nil)
