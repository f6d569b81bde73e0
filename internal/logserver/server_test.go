package logserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/crypto"
	"cipherlog/internal/datalog"
	"cipherlog/internal/domain"
	"cipherlog/internal/logserver"
	"cipherlog/internal/protocol/auth"
	"cipherlog/internal/services/message"
	"cipherlog/internal/store"
	"cipherlog/internal/tasks"
)

var (
	alice = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := logserver.New(logserver.Config{Mode: logserver.TestMode}, datalog.NewMemory(), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// newClient returns an HTTP backend that signs with keys, plus keys itself.
func newClient(ts *httptest.Server, keys domain.KeyStore) *datalog.HTTP {
	return datalog.NewHTTP(datalog.HTTPConfig{
		BaseURL: ts.URL,
		Timeout: 5 * time.Second,
		Signer:  auth.KeyStoreSigner{Keys: keys},
	})
}

// enroll creates a key pair for user in a fresh key store and registers it.
func enroll(t *testing.T, ts *httptest.Server, user domain.Address) (*store.MemoryKeyStore, *datalog.HTTP, domain.KeyPair) {
	t.Helper()
	keys := store.NewMemoryKeyStore()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, keys.SaveKeyPair(user, kp))
	client := newClient(ts, keys)
	_, err = client.Register(context.Background(), user, kp.Public)
	require.NoError(t, err)
	return keys, client, kp
}

func postJSON(t *testing.T, url string, method string, body any) (int, string) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(out)
}

func TestRecords_PublishAndRead(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	ts := newServer(t)
	_, client, _ := enroll(t, ts, alice)

	schema := domain.SchemaID{0x01}
	tx, err := client.Publish(ctx, alice, []domain.Record{
		{ID: domain.RecordID{0x0a}, SchemaID: schema, Data: []byte("first")},
		{ID: domain.RecordID{0x0b}, SchemaID: schema, Data: []byte("second")},
	})
	require.NoError(err)
	require.NotEmpty(tx.ID())
	require.NoError(tx.Wait(ctx))

	rows, err := client.ReadAllByPublisher(ctx, schema, alice)
	require.NoError(err)
	require.Len(rows, 2)
	require.Equal(alice, rows[0].Publisher)
	require.Equal("first", string(rows[0].Data))
	require.Equal(domain.RecordID{0x0b}, rows[1].ID)

	rows, err = client.ReadAllByPublisher(ctx, schema, bob)
	require.NoError(err)
	require.Empty(rows)
}

func TestRegistry_RegisterAndFetch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	ts := newServer(t)
	reader := datalog.NewHTTP(datalog.HTTPConfig{BaseURL: ts.URL})

	_, ok, err := reader.Fetch(ctx, alice)
	require.NoError(err)
	require.False(ok)

	keys, client, kp := enroll(t, ts, alice)
	pub, ok, err := reader.Fetch(ctx, alice)
	require.NoError(err)
	require.True(ok)
	require.Equal(kp.Public, pub)

	// Re-registering with the bound key is allowed.
	_, err = client.Register(ctx, alice, kp.Public)
	require.NoError(err)

	require.NoError(keys.SaveKeyPair(bob, kp))
	_, err = client.Register(ctx, bob, domain.X25519Public{})
	require.Error(err)
}

func TestRegistry_RebindNeedsBoundKey(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	ts := newServer(t)
	_, _, kp := enroll(t, ts, bob)

	// A different key pair claiming bob's address.
	mallory := store.NewMemoryKeyStore()
	forged, err := crypto.GenerateKeyPair()
	require.NoError(err)
	require.NoError(mallory.SaveKeyPair(bob, forged))
	_, err = newClient(ts, mallory).Register(ctx, bob, forged.Public)
	require.ErrorContains(err, "401")

	// Unsigned registry write.
	status, _ := postJSON(t, ts.URL+"/v1/registry/"+bob.String(), http.MethodPut,
		datalog.RegistryEntry{PublicKey: forged.Public.Hex(), SigningKey: forged.SigningPublic.Hex()})
	require.Equal(http.StatusUnauthorized, status)

	pub, _, err := datalog.NewHTTP(datalog.HTTPConfig{BaseURL: ts.URL}).Fetch(ctx, bob)
	require.NoError(err)
	require.Equal(kp.Public, pub)
}

func TestPublish_ForgedPublisherRejected(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	ts := newServer(t)
	_, _, _ = enroll(t, ts, alice)

	mallory := store.NewMemoryKeyStore()
	forged, err := crypto.GenerateKeyPair()
	require.NoError(err)
	require.NoError(mallory.SaveKeyPair(alice, forged))

	record := domain.Record{ID: domain.RecordID{1}, SchemaID: domain.SchemaID{1}, Data: []byte("x")}
	_, err = newClient(ts, mallory).Publish(ctx, alice, []domain.Record{record})
	require.ErrorContains(err, "401")

	// Nobody may publish into a slot without a bound key.
	require.NoError(mallory.SaveKeyPair(bob, forged))
	_, err = newClient(ts, mallory).Publish(ctx, bob, []domain.Record{record})
	require.ErrorContains(err, "403")

	rows, err := newClient(ts, mallory).ReadAllByPublisher(ctx, domain.SchemaID{1}, alice)
	require.NoError(err)
	require.Empty(rows)
}

func TestPublish_ReplayAndStaleRejected(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	ts := newServer(t)
	keys, _, _ := enroll(t, ts, alice)
	signer := auth.KeyStoreSigner{Keys: keys}

	record := domain.Record{ID: domain.RecordID{1}, SchemaID: domain.SchemaID{1}, Data: []byte("x")}
	signed := func(now time.Time) datalog.PublishRequest {
		st := auth.NewStamp(now)
		msg, err := auth.PublishMessage(alice, st, []domain.Record{record})
		require.NoError(err)
		sig, err := signer.Sign(alice, msg)
		require.NoError(err)
		return datalog.PublishRequest{
			Publisher: alice.String(),
			Records:   []datalog.WireRecord{datalog.RecordToWire(record)},
			Timestamp: st.Timestamp,
			Nonce:     st.Nonce,
			Signature: sig,
		}
	}

	req := signed(time.Now())
	status, _ := postJSON(t, ts.URL+"/v1/records", http.MethodPost, req)
	require.Equal(http.StatusOK, status)
	status, body := postJSON(t, ts.URL+"/v1/records", http.MethodPost, req)
	require.Equal(http.StatusUnauthorized, status)
	require.Contains(body, "nonce")

	status, _ = postJSON(t, ts.URL+"/v1/records", http.MethodPost, signed(time.Now().Add(-time.Hour)))
	require.Equal(http.StatusUnauthorized, status)

	// A fresh stamp for the same batch goes through.
	client := datalog.NewHTTP(datalog.HTTPConfig{BaseURL: ts.URL, Signer: signer})
	_, err := client.Publish(ctx, alice, []domain.Record{record})
	require.NoError(err)

	// Clients cannot overwrite their own binding.
	reserved := domain.SchemaID(crypto.Keccak256([]byte("cipherlog/logd/binding/v1")))
	_, err = client.Publish(ctx, alice, []domain.Record{{ID: domain.RecordID{2}, SchemaID: reserved, Data: []byte("x")}})
	require.ErrorContains(err, "400")
}

func TestRoutes_RejectBadInput(t *testing.T) {
	require := require.New(t)
	ts := newServer(t)

	resp, err := http.Post(ts.URL+"/v1/records", "application/json", strings.NewReader(`{"publisher":"nope","records":[]}`))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/records/zz/" + alice.String())
	require.NoError(err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(http.StatusBadRequest, resp.StatusCode)
	require.Contains(string(body), `"error"`)
	require.NotEmpty(resp.Header.Get("X-Request-Id"))
}

func TestHealthAndMetrics(t *testing.T) {
	require := require.New(t)
	ts := newServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(err)
	require.Contains(string(body), "cipherlog_logd_requests_total")
}

func TestMessaging_OverHTTPBackend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	ts := newServer(t)

	runner := tasks.NewRunner(tasks.Config{Attempts: 1}, nil)
	t.Cleanup(runner.Close)
	services := map[domain.Address]*message.Service{}
	for _, u := range []domain.Address{alice, bob} {
		keys, client, _ := enroll(t, ts, u)
		services[u] = message.New(keys, client, client, runner, message.Config{}, nil)
	}

	res, err := services[alice].SendMessage(ctx, alice, bob, "hello over http", domain.SendOptions{})
	require.NoError(err)
	require.NoError(res.SelfCopy.Wait(ctx))

	for _, pair := range [][2]domain.Address{{bob, alice}, {alice, bob}} {
		got, err := services[pair[0]].Transcript(ctx, pair[0], pair[1], 0)
		require.NoError(err)
		require.Len(got, 1)
		require.Equal("hello over http", got[0].Plaintext)
	}

	// Someone without alice's signing key cannot clear her messages.
	outsider := store.NewMemoryKeyStore()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)
	require.NoError(outsider.SaveKeyPair(alice, kp))
	client := newClient(ts, outsider)
	forger := message.New(outsider, client, client, runner, message.Config{ClearAttempts: 1}, nil)
	res2, err := forger.ClearChat(ctx, alice, bob)
	require.ErrorIs(err, domain.ErrPartialClear)
	require.Zero(res2.Cleared)

	got, err := services[bob].Transcript(ctx, bob, alice, 0)
	require.NoError(err)
	require.Len(got, 1)
	require.Equal("hello over http", got[0].Plaintext)
}
