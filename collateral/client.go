// Package collateral uploads TDX quotes to a quote-explorer service and
// returns the verification collateral the contract checks them against.
package collateral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ruteri/tee-rng-worker/interfaces"
)

const DefaultURL = "https://proof.t16z.com/api/upload"

var ErrInvalidResponse = errors.New("invalid collateral response")

var _ interfaces.CollateralService = (*Client)(nil)

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient returns a client for url (DefaultURL when empty). apiKey is sent
// as a bearer token when set.
func NewClient(url, apiKey string, log *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With("module", "collateral"),
	}
}

// Upload posts the quote as the multipart field "hex".
func (c *Client) Upload(ctx context.Context, quoteHex string) (*interfaces.QuoteCollateral, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("hex", quoteHex); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading quote: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading collateral response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("collateral service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	coll, err := parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	c.log.Debug("received quote collateral", "checksum", coll.Checksum, "quote_size", len(quoteHex)/2)
	return coll, nil
}

func parseResponse(body []byte) (*interfaces.QuoteCollateral, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidResponse)
	}

	checksum := gjson.GetBytes(body, "checksum")
	if checksum.Type != gjson.String || checksum.String() == "" {
		return nil, fmt.Errorf("%w: missing checksum", ErrInvalidResponse)
	}

	raw := gjson.GetBytes(body, "quote_collateral")
	if !raw.IsObject() {
		return nil, fmt.Errorf("%w: missing quote_collateral", ErrInvalidResponse)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(raw.Raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return &interfaces.QuoteCollateral{
		Checksum:   checksum.String(),
		Collateral: compact.String(),
	}, nil
}
