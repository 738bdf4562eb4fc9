package cryptoutils

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteAttestationProvider(t *testing.T) {
	var reportData [64]byte
	copy(reportData[:], "ed25519:abc")

	var gotPath string
	r := chi.NewRouter()
	r.Get("/attest/{reportData}", func(w http.ResponseWriter, req *http.Request) {
		gotPath = chi.URLParam(req, "reportData")
		_, _ = w.Write([]byte{0x04, 0x00, 0x02, 0x00})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	quote, err := (&RemoteAttestationProvider{Address: srv.URL + "/"}).Attest(reportData)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x00, 0x02, 0x00}, quote)
	assert.Equal(t, hex.EncodeToString(reportData[:]), gotPath)
}

func TestRemoteAttestationProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail/attest/"+hex.EncodeToString(make([]byte, 64)) {
			http.Error(w, "no tdx", http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	_, err := (&RemoteAttestationProvider{Address: srv.URL + "/fail"}).Attest([64]byte{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	_, err = (&RemoteAttestationProvider{Address: srv.URL}).Attest([64]byte{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty quote")
}
