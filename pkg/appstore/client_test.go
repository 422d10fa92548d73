package appstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeReceipt drops an opaque receipt blob into a temp dir and returns its
// path.
func writeReceipt(t *testing.T, blob []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipt.dat")
	require.NoError(t, os.WriteFile(path, blob, 0o600))
	return path
}

func TestValidateNoReceipt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(Config{
		ReceiptPath:   filepath.Join(t.TempDir(), "missing.dat"),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	result, err := c.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusNoReceipt, result.Status)
	assert.Nil(t, result.Products)
	assert.Equal(t, int32(0), calls.Load(), "a missing receipt must not trigger a network call")
}

func TestValidateSendsEncodedReceiptAndPassword(t *testing.T) {
	blob := []byte{0x01, 0x02, 0xfe}

	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Write([]byte(`{"status": 0}`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, blob),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	result, err := c.Validate(context.Background(), "shared-secret")
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)

	decoded, err := base64.StdEncoding.DecodeString(body["receipt-data"])
	require.NoError(t, err)
	assert.Equal(t, blob, decoded)
	assert.Equal(t, "shared-secret", body["password"])
}

func TestValidateOmitsEmptyPassword(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Write([]byte(`{"status": 0}`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, []byte("blob")),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	_, err := c.Validate(context.Background(), "")
	require.NoError(t, err)
	_, present := body["password"]
	assert.False(t, present)
}

func TestValidateSandboxFallback(t *testing.T) {
	var prodCalls, sandboxCalls atomic.Int32

	prod := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prodCalls.Add(1)
		w.Write([]byte(`{"status": 21007}`))
	}))
	defer prod.Close()

	sandbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sandboxCalls.Add(1)
		w.Write([]byte(`{"status": 0, "latest_receipt_info": [{"product_id": "p", "expires_date": "2024-01-01 00:00:00 Etc/GMT"}]}`))
	}))
	defer sandbox.Close()

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, []byte("blob")),
		ProductionURL: prod.URL,
		SandboxURL:    sandbox.URL,
	})

	result, err := c.Validate(context.Background(), "")
	require.NoError(t, err)

	// The sandbox verdict, not the production one, reaches the caller.
	assert.Equal(t, StatusValid, result.Status)
	require.Len(t, result.Products, 1)
	assert.True(t, result.Products["p"].Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, int32(1), prodCalls.Load())
	assert.Equal(t, int32(1), sandboxCalls.Load())
}

func TestValidateNoSecondFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status": 21007}`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, []byte("blob")),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	result, err := c.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusSandboxReceipt, result.Status)
	assert.Equal(t, int32(2), calls.Load(), "exactly one production call and one sandbox retry")
}

func TestValidateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, []byte("blob")),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	result, err := c.Validate(context.Background(), "")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrVerifyUnavailable)
}

func TestValidateMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, []byte("blob")),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	result, err := c.Validate(context.Background(), "")
	assert.Nil(t, result)
	// Malformed responses collapse into the same kind as transport errors.
	assert.ErrorIs(t, err, ErrVerifyUnavailable)
}

func TestValidateKeepsRawResponse(t *testing.T) {
	const response = `{"status": 0, "environment": "Production"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(response))
	}))
	defer srv.Close()

	c := NewClient(Config{
		ReceiptPath:   writeReceipt(t, []byte("blob")),
		ProductionURL: srv.URL,
		SandboxURL:    srv.URL,
	})

	result, err := c.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.JSONEq(t, response, string(result.Raw))
}
