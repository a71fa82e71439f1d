package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/retry"
)

// winstonPerUnit converts the gateway's smallest indivisible unit (winston)
// to whole store units.
var winstonPerUnit = new(big.Float).SetInt64(1_000_000_000_000)

// GatewayConfig holds connection parameters for an Arweave-style HTTP
// gateway.
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration

	// RetryAttempts bounds retries on idempotent reads. Zero uses the
	// default policy. Publishes are never retried here.
	RetryAttempts int
}

// Validate checks the config at construction time.
func (c GatewayConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("content: gateway base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("content: gateway base_url: %w", err)
	}
	return nil
}

// Gateway implements domain.ContentStorePort against an Arweave-style REST
// gateway: POST /tx to publish, GET /tx/{id}/data to retrieve,
// GET /wallet/{address}/balance for winston balances.
type Gateway struct {
	baseURL string
	http    *http.Client
	retry   *retry.Policy
}

// NewGateway creates a Gateway from cfg.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry.NewPolicy(cfg.RetryAttempts, 0),
	}, nil
}

// txSubmission is the publish request body.
type txSubmission struct {
	Data string            `json:"data"` // base64url payload
	Tags map[string]string `json:"tags,omitempty"`
}

// txReceipt is the publish response body.
type txReceipt struct {
	ID string `json:"id"`
}

// Publish submits data with tags and returns the gateway-assigned content ID.
func (g *Gateway) Publish(ctx context.Context, data []byte, tags map[string]string) (string, error) {
	body, err := json.Marshal(txSubmission{
		Data: base64.RawURLEncoding.EncodeToString(data),
		Tags: tags,
	})
	if err != nil {
		return "", fmt.Errorf("content: encode submission: %w", err)
	}

	var receipt txReceipt
	if err := g.do(ctx, http.MethodPost, "/tx", body, &receipt); err != nil {
		return "", err
	}
	if !g.ValidateID(receipt.ID) {
		return "", &domain.NetworkError{Op: "publish",
			Err: fmt.Errorf("gateway returned malformed content id %q", receipt.ID)}
	}
	return receipt.ID, nil
}

// Retrieve fetches raw transaction data by content ID. Transient transport
// failures are retried with backoff; content is immutable so reads are safe
// to repeat.
func (g *Gateway) Retrieve(ctx context.Context, id string) ([]byte, error) {
	if !g.ValidateID(id) {
		return nil, fmt.Errorf("content: malformed content id %q", id)
	}

	var data []byte
	err := g.retry.Do(ctx, "retrieve", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/tx/"+id+"/data", nil)
		if err != nil {
			return fmt.Errorf("content: build request: %w", err)
		}

		resp, err := g.http.Do(req)
		if err != nil {
			return wrapTransport("retrieve", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return domain.ErrNotFound
		case resp.StatusCode != http.StatusOK:
			return &domain.NetworkError{Op: "retrieve",
				Err: fmt.Errorf("gateway status %d", resp.StatusCode)}
		}

		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// walletBalance is the balance response body, in winston.
type walletBalance struct {
	Winston string `json:"winston"`
}

// Balance returns the wallet balance converted from winston to whole units.
func (g *Gateway) Balance(ctx context.Context, address string) (float64, error) {
	var bal walletBalance
	err := g.retry.Do(ctx, "balance", func(ctx context.Context) error {
		return g.do(ctx, http.MethodGet, "/wallet/"+url.PathEscape(address)+"/balance", nil, &bal)
	})
	if err != nil {
		return 0, err
	}

	winston, ok := new(big.Float).SetString(bal.Winston)
	if !ok {
		return 0, &domain.NetworkError{Op: "balance",
			Err: fmt.Errorf("malformed winston balance %q", bal.Winston)}
	}
	units, _ := new(big.Float).Quo(winston, winstonPerUnit).Float64()
	return units, nil
}

// priceQuote is the cost-estimate response body, in winston.
type priceQuote struct {
	Winston string `json:"winston"`
}

// EstimateCost asks the gateway for the publish price of a payload of the
// given size and converts it to whole units.
func (g *Gateway) EstimateCost(ctx context.Context, size int) (float64, error) {
	var quote priceQuote
	err := g.retry.Do(ctx, "estimate", func(ctx context.Context) error {
		return g.do(ctx, http.MethodGet, fmt.Sprintf("/price/%d", size), nil, &quote)
	})
	if err != nil {
		return 0, err
	}
	winston, ok := new(big.Float).SetString(quote.Winston)
	if !ok {
		return 0, &domain.NetworkError{Op: "estimate",
			Err: fmt.Errorf("malformed winston price %q", quote.Winston)}
	}
	units, _ := new(big.Float).Quo(winston, winstonPerUnit).Float64()
	return units, nil
}

// ValidateID reports whether id has the 43-character base64url shape.
func (g *Gateway) ValidateID(id string) bool {
	return contentIDPattern.MatchString(id)
}

// do executes an HTTP call and decodes a JSON response when out is non-nil.
func (g *Gateway) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("content: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return wrapTransport(method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.NetworkError{Op: method + " " + path,
			Err: fmt.Errorf("gateway status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.NetworkError{Op: method + " " + path, Err: err}
	}
	return nil
}

// wrapTransport classifies a transport error as timeout or network failure.
func wrapTransport(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &domain.TimeoutError{Op: op}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{Op: op}
	}
	return &domain.NetworkError{Op: op, Err: err}
}

var _ domain.ContentStorePort = (*Gateway)(nil)
