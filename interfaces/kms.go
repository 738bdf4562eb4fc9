package interfaces

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-rng-worker/cryptoutils"
)

// Signer produces ed25519 signatures on behalf of a ledger account.
type Signer interface {
	SignerID() string
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}

// Identity is the worker's keypair and ledger account. It is created once at
// startup and never persisted.
type Identity struct {
	accountID string
	publicKey string
	private   ed25519.PrivateKey
}

var _ Signer = (*Identity)(nil)

func NewIdentity(private ed25519.PrivateKey) (*Identity, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key length")
	}
	pub := private.Public().(ed25519.PublicKey)
	return &Identity{
		accountID: cryptoutils.ImplicitAccountID(pub),
		publicKey: cryptoutils.EncodePublicKey(pub),
		private:   private,
	}, nil
}

// SignerID is the implicit account id: lowercase hex of the public key.
func (i *Identity) SignerID() string { return i.accountID }

// PublicKey is the ledger string form, "ed25519:<base58>".
func (i *Identity) PublicKey() string { return i.publicKey }

func (i *Identity) PublicKeyBytes() ed25519.PublicKey {
	return i.private.Public().(ed25519.PublicKey)
}

func (i *Identity) Sign(message []byte) ([]byte, error) {
	if i == nil || len(i.private) != ed25519.PrivateKeySize {
		return nil, errors.New("identity has no signing key")
	}
	return ed25519.Sign(i.private, message), nil
}

func (i *Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.accountID, i.publicKey)
}

func (i *Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account_id", i.accountID),
		slog.String("public_key", i.publicKey),
	)
}
