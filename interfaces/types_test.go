package interfaces

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteArrayJSON(t *testing.T) {
	data, err := json.Marshal(Response{RequestID: 7, RandomNumber: ByteArray{1, 255}, Signature: ByteArray{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_id":7,"random_number":[1,255],"signature":[]}`, string(data))

	var req PendingRequest
	require.NoError(t, json.Unmarshal([]byte(`{"request_id":3,"random_seed":[0,1,2],"yield_index":{"data_id":"abc"}}`), &req))
	assert.Equal(t, uint64(3), req.RequestID)
	assert.Equal(t, ByteArray{0, 1, 2}, req.RandomSeed)
	assert.Equal(t, "abc", req.YieldIndex.DataID)

	var fromString ByteArray
	require.NoError(t, json.Unmarshal([]byte(`"AQI="`), &fromString))
	assert.Equal(t, ByteArray{1, 2}, fromString)

	var bad ByteArray
	assert.Error(t, json.Unmarshal([]byte(`[256]`), &bad))
}

func TestIdentityNeverLeaksPrivateKey(t *testing.T) {
	private := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, 32))
	id, err := NewIdentity(private)
	require.NoError(t, err)

	assert.Len(t, id.SignerID(), 64)
	assert.True(t, strings.HasPrefix(id.PublicKey(), "ed25519:"))

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("identity", "identity", id)
	logged := buf.String() + fmt.Sprint(id) + fmt.Sprintf("%+v", id)
	assert.Contains(t, logged, id.SignerID())
	assert.NotContains(t, logged, fmt.Sprintf("%x", private.Seed()))

	sig, err := id.Sign([]byte("msg"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(id.PublicKeyBytes(), []byte("msg"), sig))
}

func TestNewIdentityRejectsShortKey(t *testing.T) {
	_, err := NewIdentity(ed25519.PrivateKey{1, 2})
	assert.Error(t, err)
}
