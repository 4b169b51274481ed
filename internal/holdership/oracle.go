// Package holdership answers whether a wallet holds enough of a token by
// querying a Solana JSON-RPC node.
package holdership

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var ErrRPC = errors.New("token balance rpc failed")

// Checker gates votes on token holdership.
type Checker interface {
	HasBalance(ctx context.Context, wallet string) (bool, error)
}

// Oracle queries getTokenAccountsByOwner for a single mint and compares the
// summed raw amount against a threshold.
type Oracle struct {
	rpcURL    string
	mint      string
	minAmount uint64
	client    *http.Client
}

func NewOracle(rpcURL, mint string, minAmount uint64) (*Oracle, error) {
	if rpcURL == "" {
		return nil, errors.New("token gate needs an rpc url")
	}
	if mint == "" {
		return nil, errors.New("token gate needs a mint")
	}
	return &Oracle{
		rpcURL:    strings.TrimSuffix(rpcURL, "/"),
		mint:      mint,
		minAmount: minAmount,
		client:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type tokenAccountsResp struct {
	Result *struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals int    `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// Balance returns the wallet's total raw balance of the configured mint.
func (o *Oracle) Balance(ctx context.Context, wallet string) (uint64, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []any{
			wallet,
			map[string]string{"mint": o.mint},
			map[string]string{"encoding": "jsonParsed"},
		},
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.rpcURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: http status %d", ErrRPC, resp.StatusCode)
	}

	var payload tokenAccountsResp
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrRPC, err)
	}
	if payload.Error != nil {
		return 0, fmt.Errorf("%w: %d %s", ErrRPC, payload.Error.Code, payload.Error.Message)
	}
	if payload.Result == nil {
		return 0, fmt.Errorf("%w: empty result", ErrRPC)
	}

	var total uint64
	for _, acct := range payload.Result.Value {
		info := acct.Account.Data.Parsed.Info
		// some nodes ignore the mint filter on parsed responses
		if info.Mint != "" && info.Mint != o.mint {
			continue
		}
		amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad amount %q", ErrRPC, info.TokenAmount.Amount)
		}
		total += amount
	}
	return total, nil
}

// HasBalance reports whether the wallet holds at least the threshold.
func (o *Oracle) HasBalance(ctx context.Context, wallet string) (bool, error) {
	total, err := o.Balance(ctx, wallet)
	if err != nil {
		return false, err
	}
	return total >= o.minAmount, nil
}

var _ Checker = (*Oracle)(nil)
