// Package rpc implements the HTTP client for the node wallet API. Every
// outbound call is funneled through one rate limiter and one bounded
// concurrency gate so concurrent engine calls cannot stampede the node.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	cerrors "tronforge/core/errors"
	"tronforge/core/types"
	"tronforge/crypto"
)

const (
	defaultRequestsPerSecond = 5
	defaultBurst             = 10
	defaultMaxInFlight       = 4
)

// Client wraps a node wallet endpoint and exposes typed helpers for the
// calls the engine consumes.
type Client struct {
	endpoint   string
	httpClient *http.Client
	apiKey     string
	limiter    *rate.Limiter
	inflight   chan struct{}
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for wallet calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the provider API key attached to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithRateLimit overrides the outbound request rate and burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithMaxInFlight bounds the number of concurrent wallet calls.
func WithMaxInFlight(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.inflight = make(chan struct{}, n)
		}
	}
}

// New initialises a client bound to the provided wallet endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("rpc: endpoint required")
	}
	c := &Client{
		endpoint:   trimmed,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		inflight:   make(chan struct{}, defaultMaxInFlight),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// BroadcastError is a node-side rejection of a signed transaction. Code is
// the node's machine-readable subtype (SIGERROR, CONTRACT_VALIDATE_ERROR, ...).
type BroadcastError struct {
	Code    string
	Message string
}

func (e *BroadcastError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc: broadcast rejected: %s", e.Code)
	}
	return fmt.Sprintf("rpc: broadcast rejected: %s: %s", e.Code, e.Message)
}

// Unwrap ties every node rejection to the engine's broadcast sentinel.
func (e *BroadcastError) Unwrap() error {
	return cerrors.ErrBroadcastRejected
}

// --- wallet payloads ---

type addressParam struct {
	Address string `json:"address"`
	Visible bool   `json:"visible"`
}

type valueParam struct {
	Value string `json:"value"`
}

type keyPayload struct {
	Address string `json:"address"`
	Weight  int64  `json:"weight"`
}

type permissionPayload struct {
	ID             int32        `json:"id"`
	Type           string       `json:"type"`
	PermissionName string       `json:"permission_name"`
	Threshold      int64        `json:"threshold"`
	Operations     string       `json:"operations"`
	Keys           []keyPayload `json:"keys"`
}

type accountPayload struct {
	Address          string              `json:"address"`
	OwnerPermission  *permissionPayload  `json:"owner_permission"`
	ActivePermission []permissionPayload `json:"active_permission"`
}

type accountResourcePayload struct {
	FreeNetUsed  int64 `json:"freeNetUsed"`
	FreeNetLimit int64 `json:"freeNetLimit"`
	NetUsed      int64 `json:"NetUsed"`
	NetLimit     int64 `json:"NetLimit"`
	EnergyUsed   int64 `json:"EnergyUsed"`
	EnergyLimit  int64 `json:"EnergyLimit"`
}

type broadcastResult struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type triggerResult struct {
	Result struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"result"`
	Transaction *types.Transaction `json:"transaction"`
}

type nowBlockPayload struct {
	BlockID     string `json:"blockID"`
	BlockHeader struct {
		RawData struct {
			Number int64 `json:"number"`
		} `json:"raw_data"`
	} `json:"block_header"`
}

// DeployContractRequest is the wire form of the node-side deployment builder.
type DeployContractRequest struct {
	OwnerAddress               string          `json:"owner_address"`
	ABI                        json.RawMessage `json:"abi,omitempty"`
	Bytecode                   string          `json:"bytecode"`
	Name                       string          `json:"name,omitempty"`
	FeeLimit                   int64           `json:"fee_limit,omitempty"`
	CallValue                  int64           `json:"call_value,omitempty"`
	ConsumeUserResourcePercent int64           `json:"consume_user_resource_percent,omitempty"`
	OriginEnergyLimit          int64           `json:"origin_energy_limit,omitempty"`
	PermissionID               int32           `json:"Permission_id,omitempty"`
}

// TriggerContractRequest is the wire form of the node-side invocation builder.
type TriggerContractRequest struct {
	OwnerAddress     string `json:"owner_address"`
	ContractAddress  string `json:"contract_address"`
	FunctionSelector string `json:"function_selector,omitempty"`
	Parameter        string `json:"parameter,omitempty"`
	Data             string `json:"data,omitempty"`
	FeeLimit         int64  `json:"fee_limit,omitempty"`
	CallValue        int64  `json:"call_value,omitempty"`
	PermissionID     int32  `json:"Permission_id,omitempty"`
}

// --- typed wallet calls ---

// GetAccount fetches a fresh permission snapshot for the address. The owner
// permission omits its operations vector on the wire because it implicitly
// holds every capability; the snapshot materialises that as an all-ones
// vector so callers never special-case the owner.
func (c *Client) GetAccount(ctx context.Context, addr crypto.Address) (*types.Account, error) {
	var payload accountPayload
	if err := c.post(ctx, "/wallet/getaccount", addressParam{Address: addr.Hex()}, &payload); err != nil {
		return nil, err
	}
	if payload.Address == "" || payload.OwnerPermission == nil {
		return nil, fmt.Errorf("rpc: account %s not found on chain", addr.String())
	}
	account := &types.Account{Address: addr}
	owner, err := decodePermission(*payload.OwnerPermission, types.PermissionOwner, true)
	if err != nil {
		return nil, fmt.Errorf("rpc: owner permission: %w", err)
	}
	account.Owner = owner
	for i, raw := range payload.ActivePermission {
		active, err := decodePermission(raw, types.PermissionActive, false)
		if err != nil {
			return nil, fmt.Errorf("rpc: active permission %d: %w", i, err)
		}
		account.Actives = append(account.Actives, active)
	}
	return account, nil
}

// GetAccountResources fetches the remaining energy/bandwidth allowances.
func (c *Client) GetAccountResources(ctx context.Context, addr crypto.Address) (*types.AccountResources, error) {
	var payload accountResourcePayload
	if err := c.post(ctx, "/wallet/getaccountresource", addressParam{Address: addr.Hex()}, &payload); err != nil {
		return nil, err
	}
	return &types.AccountResources{
		EnergyLimit:  payload.EnergyLimit,
		EnergyUsed:   payload.EnergyUsed,
		NetLimit:     payload.NetLimit,
		NetUsed:      payload.NetUsed,
		FreeNetLimit: payload.FreeNetLimit,
		FreeNetUsed:  payload.FreeNetUsed,
	}, nil
}

// BuildDeploy asks the node to construct an unsigned deployment envelope.
func (c *Client) BuildDeploy(ctx context.Context, req DeployContractRequest) (*types.Transaction, error) {
	var tx types.Transaction
	if err := c.post(ctx, "/wallet/deploycontract", req, &tx); err != nil {
		return nil, err
	}
	if len(tx.RawData.Contract) == 0 {
		return nil, fmt.Errorf("rpc: node returned empty deployment envelope")
	}
	return &tx, nil
}

// BuildTrigger asks the node to construct an unsigned invocation envelope.
func (c *Client) BuildTrigger(ctx context.Context, req TriggerContractRequest) (*types.Transaction, error) {
	var res triggerResult
	if err := c.post(ctx, "/wallet/triggersmartcontract", req, &res); err != nil {
		return nil, err
	}
	if !res.Result.Result || res.Transaction == nil {
		return nil, fmt.Errorf("rpc: trigger build failed: %s: %s", res.Result.Code, decodeNodeMessage(res.Result.Message))
	}
	return res.Transaction, nil
}

// Broadcast submits a signed envelope. Node rejections come back as a
// *BroadcastError with the node's subtype preserved.
func (c *Client) Broadcast(ctx context.Context, tx *types.Transaction) (string, error) {
	if tx == nil || !tx.Signed() {
		return "", fmt.Errorf("rpc: refusing to broadcast unsigned transaction")
	}
	var res broadcastResult
	if err := c.post(ctx, "/wallet/broadcasttransaction", tx, &res); err != nil {
		return "", err
	}
	if !res.Result {
		return "", &BroadcastError{Code: res.Code, Message: decodeNodeMessage(res.Message)}
	}
	if res.TxID != "" {
		return res.TxID, nil
	}
	return tx.TxID, nil
}

// GetTransactionInfo returns the node's view of a broadcast transaction, or
// (nil, nil) while the transaction is not indexed yet.
func (c *Client) GetTransactionInfo(ctx context.Context, txID string) (*types.TransactionInfo, error) {
	var info types.TransactionInfo
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", valueParam{Value: txID}, &info); err != nil {
		return nil, err
	}
	if info.ID == "" && info.BlockNumber == 0 {
		return nil, nil
	}
	return &info, nil
}

// GetNowBlock fetches the reference block for locally assembled envelopes.
func (c *Client) GetNowBlock(ctx context.Context) (*types.BlockRef, error) {
	var payload nowBlockPayload
	if err := c.post(ctx, "/wallet/getnowblock", struct{}{}, &payload); err != nil {
		return nil, err
	}
	if payload.BlockID == "" {
		return nil, fmt.Errorf("rpc: node returned empty block")
	}
	return &types.BlockRef{Number: payload.BlockHeader.RawData.Number, Hash: payload.BlockID}, nil
}

// --- plumbing ---

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	select {
	case c.inflight <- struct{}{}:
		defer func() { <-c.inflight }()
	case <-ctx.Done():
		return fmt.Errorf("rpc: %s: %w", path, ctx.Err())
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rpc: %s: %w", path, err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("rpc: encode %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("rpc: %s status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rpc: decode %s response: %w", path, err)
	}
	return nil
}

func decodePermission(raw permissionPayload, kind types.PermissionKind, owner bool) (types.Permission, error) {
	ops, err := types.ParseOperations(raw.Operations)
	if err != nil {
		return types.Permission{}, err
	}
	if owner && strings.TrimSpace(raw.Operations) == "" {
		ops = allOperations()
	}
	p := types.Permission{
		ID:         raw.ID,
		Kind:       kind,
		Name:       raw.PermissionName,
		Threshold:  raw.Threshold,
		Operations: ops,
	}
	if owner {
		p.ID = types.OwnerPermissionID
	}
	for _, key := range raw.Keys {
		addr, err := crypto.DecodeAddress(key.Address)
		if err != nil {
			return types.Permission{}, fmt.Errorf("key %q: %w", key.Address, err)
		}
		p.Keys = append(p.Keys, types.PermissionKey{Address: addr, Weight: key.Weight})
	}
	return p, nil
}

func allOperations() types.Operations {
	bits := make([]uint, 256)
	for i := range bits {
		bits[i] = uint(i)
	}
	return types.OperationsWith(bits...)
}

// decodeNodeMessage turns the node's hex-encoded diagnostic strings into
// readable text; non-hex input is passed through untouched.
func decodeNodeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	if decoded, err := hex.DecodeString(msg); err == nil {
		return string(decoded)
	}
	return msg
}
