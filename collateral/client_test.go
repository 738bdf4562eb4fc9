package collateral

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUploadSendsMultipartHex(t *testing.T) {
	var gotHex, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotHex = r.FormValue("hex")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"success":true,"checksum":"abc123","quote_collateral":{ "tcb_info": "x",  "pck_crl": "y" }}`))
	}))
	defer srv.Close()

	coll, err := NewClient(srv.URL, "secret", testLogger()).Upload(context.Background(), "deadbeef")
	require.NoError(t, err)

	assert.Equal(t, "deadbeef", gotHex)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "abc123", coll.Checksum)
	assert.Equal(t, `{"tcb_info":"x","pck_crl":"y"}`, coll.Collateral)
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"down"}`},
		{"not json", http.StatusOK, `<html>`},
		{"missing checksum", http.StatusOK, `{"quote_collateral":{}}`},
		{"missing collateral", http.StatusOK, `{"checksum":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", testLogger()).Upload(context.Background(), "00")
			assert.Error(t, err)
		})
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	assert.Equal(t, DefaultURL, NewClient("", "", testLogger()).url)
}
