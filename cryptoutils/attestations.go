package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
)

var (
	ErrUnsupportedQuote   = errors.New("unsupported quote")
	ErrReportDataMismatch = errors.New("quote report data mismatch")
)

// AttestationProvider produces a raw TDX quote over 64 bytes of report data.
type AttestationProvider interface {
	Attest(reportData [64]byte) ([]byte, error)
}

// DCAPAttestationProvider asks the local TDX module for a quote, preferring
// the configfs-tsm interface and falling back to the legacy guest device.
type DCAPAttestationProvider struct{}

func (DCAPAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// RemoteAttestationProvider fetches quotes from a quote provider service
// running next to the worker: GET <Address>/attest/<hex report data>.
type RemoteAttestationProvider struct {
	Address string
	Client  *http.Client
}

func (p *RemoteAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	url := fmt.Sprintf("%s/attest/%s", strings.TrimRight(p.Address, "/"), hex.EncodeToString(reportData[:]))
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	if len(rawQuote) == 0 {
		return nil, errors.New("remote quote provider returned an empty quote")
	}
	return rawQuote, nil
}

// InspectQuote parses a quote, checks that it carries reportData and returns
// its measurement registers (0: MRTD, 1-4: RTMR0-3, 5-7: config id, owner,
// owner config). It does not verify the quote signature chain; that happens
// on the ledger with the uploaded collateral.
func InspectQuote(quote []byte, reportData [64]byte) (map[int]string, error) {
	protoQuote, err := tdx_abi.QuoteToProto(quote)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse quote: %w", ErrUnsupportedQuote, err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("%w: quote type %T", ErrUnsupportedQuote, protoQuote)
	}

	body := v4Quote.GetTdQuoteBody()
	if body == nil {
		return nil, fmt.Errorf("%w: quote has no TD body", ErrUnsupportedQuote)
	}

	if !bytes.Equal(body.ReportData, reportData[:]) {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrReportDataMismatch, body.ReportData, reportData[:])
	}

	measurements := map[int]string{
		0: hex.EncodeToString(body.MrTd),
		5: hex.EncodeToString(body.MrConfigId),
		6: hex.EncodeToString(body.MrOwner),
		7: hex.EncodeToString(body.MrOwnerConfig),
	}
	for i, rtmr := range body.Rtmrs {
		if i > 3 {
			break
		}
		measurements[i+1] = hex.EncodeToString(rtmr)
	}

	return measurements, nil
}
