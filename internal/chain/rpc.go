package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// addressPatterns maps currency ticker to the address shape its node accepts.
var addressPatterns = map[string]*regexp.Regexp{
	"NANO": regexp.MustCompile(`^nano_[13][a-z0-9]{59}$`),
	"DOGE": regexp.MustCompile(`^D[a-km-zA-HJ-NP-Z1-9]{25,34}$`),
}

// RPCConfig holds connection parameters for a value-transfer node.
type RPCConfig struct {
	Currency string
	NodeURL  string
	// APIKey, when set, is sent as a bearer token on every call. Hosted node
	// providers require it; self-hosted nodes ignore it.
	APIKey  string
	Timeout time.Duration
}

// Validate checks the config at construction time.
func (c RPCConfig) Validate() error {
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("chain: currency is required")
	}
	if strings.TrimSpace(c.NodeURL) == "" {
		return fmt.Errorf("chain: node_url is required for %s", c.Currency)
	}
	if _, err := url.Parse(c.NodeURL); err != nil {
		return fmt.Errorf("chain: node_url for %s: %w", c.Currency, err)
	}
	return nil
}

// RPCClient implements domain.ValueTransferPort over a node's JSON action
// API (the Nano RPC convention: a single endpoint taking {"action": ...}).
type RPCClient struct {
	currency string
	nodeURL  string
	apiKey   string
	http     *http.Client
}

// NewRPCClient creates an RPCClient from cfg.
func NewRPCClient(cfg RPCConfig) (*RPCClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		currency: strings.ToUpper(cfg.Currency),
		nodeURL:  cfg.NodeURL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// sendResponse is the node reply to a send action.
type sendResponse struct {
	Block string `json:"block"`
	Error string `json:"error,omitempty"`
}

// SendValue submits a send action and returns the resulting transaction
// reference. It is not idempotent; callers own retry and dedupe policy.
func (c *RPCClient) SendValue(ctx context.Context, from, to string, amount domain.Amount, memo string) (domain.TransactionRef, error) {
	if amount.Currency != c.currency {
		return domain.TransactionRef{}, domain.Validation("currency",
			"client carries %s, got %s", c.currency, amount.Currency)
	}

	var resp sendResponse
	err := c.call(ctx, map[string]string{
		"action": "send",
		"source": from,
		"destination": to,
		"amount": amount.Value,
		"id":     memo, // node-side dedupe id, doubles as the bid memo
	}, &resp)
	if err != nil {
		return domain.TransactionRef{}, err
	}
	if resp.Error != "" {
		if strings.Contains(strings.ToLower(resp.Error), "insufficient") {
			return domain.TransactionRef{}, &domain.InsufficientFundsError{
				Account: from, Required: amount.Value,
			}
		}
		return domain.TransactionRef{}, &domain.NetworkError{Op: "send",
			Err: errors.New(resp.Error)}
	}

	return domain.TransactionRef{
		Hash:      resp.Block,
		From:      from,
		To:        to,
		Amount:    amount,
		Memo:      memo,
		Timestamp: time.Now().UTC(),
	}, nil
}

// balanceResponse is the node reply to a balance query.
type balanceResponse struct {
	Balance string `json:"balance"`
	Error   string `json:"error,omitempty"`
}

// GetBalance queries the confirmed balance for address.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (domain.Amount, error) {
	var resp balanceResponse
	err := c.call(ctx, map[string]string{
		"action":  "account_balance",
		"account": address,
	}, &resp)
	if err != nil {
		return domain.Amount{}, err
	}
	if resp.Error != "" {
		return domain.Amount{}, &domain.NetworkError{Op: "account_balance",
			Err: errors.New(resp.Error)}
	}
	return domain.NewAmount(resp.Balance, c.currency)
}

// ValidateAddress checks address shape for the client's currency. Unknown
// currencies only require a non-empty address.
func (c *RPCClient) ValidateAddress(address string) bool {
	if pattern, ok := addressPatterns[c.currency]; ok {
		return pattern.MatchString(address)
	}
	return address != ""
}

// accountInfoResponse is the node reply to an account_info + history query.
type accountInfoResponse struct {
	Balance    string `json:"balance"`
	BlockCount int    `json:"block_count,string"`
	History    []struct {
		Hash      string `json:"hash"`
		Account   string `json:"account"`
		Amount    string `json:"amount"`
		Type      string `json:"type"` // "send" or "receive"
		Memo      string `json:"memo,omitempty"`
		Timestamp int64  `json:"local_timestamp,string"`
	} `json:"history"`
	Error string `json:"error,omitempty"`
}

// GetAccountInfo queries balance, block count, and transaction history.
// History entries arrive newest first.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address string) (domain.AccountInfo, error) {
	var resp accountInfoResponse
	err := c.call(ctx, map[string]string{
		"action":  "account_history",
		"account": address,
		"count":   "100",
	}, &resp)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	if resp.Error != "" {
		if strings.Contains(strings.ToLower(resp.Error), "not found") {
			return domain.AccountInfo{}, domain.ErrNotFound
		}
		return domain.AccountInfo{}, &domain.NetworkError{Op: "account_history",
			Err: errors.New(resp.Error)}
	}

	info := domain.AccountInfo{
		Address:    address,
		Balance:    domain.Amount{Value: resp.Balance, Currency: c.currency},
		BlockCount: resp.BlockCount,
	}
	for _, h := range resp.History {
		ref := domain.TransactionRef{
			Hash:      h.Hash,
			Amount:    domain.Amount{Value: h.Amount, Currency: c.currency},
			Memo:      h.Memo,
			Timestamp: time.Unix(h.Timestamp, 0).UTC(),
		}
		// The node reports the counterparty in "account"; orient the ref so
		// deposits into address carry it in To.
		if h.Type == "receive" {
			ref.From, ref.To = h.Account, address
		} else {
			ref.From, ref.To = address, h.Account
		}
		info.Transactions = append(info.Transactions, ref)
	}
	return info, nil
}

// call posts a JSON action to the node and decodes the reply.
func (c *RPCClient) call(ctx context.Context, payload map[string]string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chain: encode rpc payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return &domain.TimeoutError{Op: payload["action"]}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.TimeoutError{Op: payload["action"]}
		}
		return &domain.NetworkError{Op: payload["action"], Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.NetworkError{Op: payload["action"],
			Err: fmt.Errorf("node status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.NetworkError{Op: payload["action"], Err: err}
	}
	return nil
}

var _ domain.ValueTransferPort = (*RPCClient)(nil)
