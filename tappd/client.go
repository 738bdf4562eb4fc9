package tappd

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/interfaces"
)

const (
	DefaultSocketPath = "/var/run/tappd.sock"

	// HashRaw embeds report data in the quote unhashed.
	HashRaw = "raw"
)

var _ interfaces.AttestationClient = (*Client)(nil)

// Client talks to the tappd attestation agent over its JSON RPC surface.
// Transport failures are reported as interfaces.ErrAttestationUnavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// quoteProvider, when set, produces quotes locally instead of through
	// the agent.
	quoteProvider cryptoutils.AttestationProvider
}

// New returns a client for endpoint, which is either an http(s) URL (the
// simulator) or a unix socket path. An empty endpoint means DefaultSocketPath.
func New(endpoint string) *Client {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return &Client{
			baseURL:    strings.TrimRight(endpoint, "/"),
			httpClient: &http.Client{Timeout: 30 * time.Second},
		}
	}

	socket := strings.TrimPrefix(endpoint, "unix://")
	if socket == "" {
		socket = DefaultSocketPath
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}
	return &Client{
		baseURL:    "http://localhost",
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}
}

// WithQuoteProvider makes TdxQuote use p (for example the configfs provider)
// instead of the agent.
func (c *Client) WithQuoteProvider(p cryptoutils.AttestationProvider) *Client {
	c.quoteProvider = p
	return c
}

func (c *Client) call(ctx context.Context, method string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prpc/Tappd."+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrAttestationUnavailable, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", interfaces.ErrAttestationUnavailable, method, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tappd %s returned status %d: %s", method, resp.StatusCode, string(respBody))
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("tappd %s returned invalid JSON", method)
	}
	if rpcErr := gjson.GetBytes(respBody, "error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return nil, fmt.Errorf("tappd %s: %s", method, rpcErr.String())
	}
	return respBody, nil
}

// DeriveKey returns 32 bytes of key material for path and subject.
func (c *Client) DeriveKey(ctx context.Context, path, subject string) ([]byte, error) {
	resp, err := c.call(ctx, "DeriveKey", map[string]string{"path": path, "subject": subject})
	if err != nil {
		return nil, err
	}

	keyPEM := gjson.GetBytes(resp, "key").String()
	if keyPEM == "" {
		return nil, errors.New("tappd DeriveKey returned no key")
	}
	return KeyMaterial(keyPEM)
}

// KeyMaterial reduces a PEM private key to 32 bytes: the scalar for EC keys,
// the seed for ed25519 keys and sha256 of the DER for anything else. The raw
// DER prefix is never used; it is mostly ASN.1 framing.
func KeyMaterial(keyPEM string) ([]byte, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("derived key is not PEM encoded")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if ecKey, ecErr := x509.ParseECPrivateKey(block.Bytes); ecErr == nil {
			parsed = ecKey
		}
	}

	switch key := parsed.(type) {
	case *ecdsa.PrivateKey:
		return key.D.FillBytes(make([]byte, 32)), nil
	case ed25519.PrivateKey:
		return key.Seed(), nil
	default:
		sum := sha256.Sum256(block.Bytes)
		return sum[:], nil
	}
}

func (c *Client) Info(ctx context.Context) (*interfaces.TappdInfo, error) {
	resp, err := c.call(ctx, "Info", struct{}{})
	if err != nil {
		return nil, err
	}

	tcb := gjson.GetBytes(resp, "tcb_info")
	if !tcb.Exists() || tcb.Type == gjson.Null {
		return nil, errors.New("tappd Info returned no tcb_info")
	}

	info := &interfaces.TappdInfo{
		AppID:      gjson.GetBytes(resp, "app_id").String(),
		InstanceID: gjson.GetBytes(resp, "instance_id").String(),
		AppName:    gjson.GetBytes(resp, "app_name").String(),
	}
	if tcb.Type == gjson.String {
		info.TCBInfo = tcb.String()
	} else {
		var compact bytes.Buffer
		if err := json.Compact(&compact, []byte(tcb.Raw)); err != nil {
			return nil, fmt.Errorf("invalid tcb_info: %w", err)
		}
		info.TCBInfo = compact.String()
	}
	return info, nil
}

func (c *Client) TdxQuote(ctx context.Context, reportData []byte, hashAlgorithm string) (*interfaces.TdxQuote, error) {
	if hashAlgorithm == HashRaw && len(reportData) > 64 {
		return nil, fmt.Errorf("raw report data must be at most 64 bytes, got %d", len(reportData))
	}

	if c.quoteProvider != nil {
		if hashAlgorithm != HashRaw {
			return nil, fmt.Errorf("local quote provider only supports %q report data", HashRaw)
		}
		var rd [64]byte
		copy(rd[64-len(reportData):], reportData)
		quote, err := c.quoteProvider.Attest(rd)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", interfaces.ErrAttestationUnavailable, err)
		}
		return &interfaces.TdxQuote{Quote: quote}, nil
	}

	resp, err := c.call(ctx, "TdxQuote", map[string]string{
		"report_data":    hex.EncodeToString(reportData),
		"hash_algorithm": hashAlgorithm,
	})
	if err != nil {
		return nil, err
	}

	quoteHex := strings.TrimPrefix(gjson.GetBytes(resp, "quote").String(), "0x")
	if quoteHex == "" {
		return nil, errors.New("tappd TdxQuote returned no quote")
	}
	quote, err := hex.DecodeString(quoteHex)
	if err != nil {
		return nil, fmt.Errorf("invalid quote hex: %w", err)
	}

	return &interfaces.TdxQuote{
		Quote:    quote,
		EventLog: gjson.GetBytes(resp, "event_log").String(),
	}, nil
}
