package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
)

// RawObject is the wire form of a ledger object before typed decoding.
type RawObject struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Version uint64          `json:"version"`
	Fields  json.RawMessage `json:"fields"`
}

// ObjectChange describes one object mutation reported by a transaction result.
type ObjectChange struct {
	Kind       string `json:"kind"` // "created" or "mutated"
	ObjectType string `json:"objectType"`
	ObjectID   string `json:"objectId"`
}

// TxResult is the decoded result of a finalized transaction.
type TxResult struct {
	Digest        string         `json:"digest"`
	ObjectChanges []ObjectChange `json:"objectChanges"`
}

// RPCError is a failure reported by the ledger node itself, as opposed to a
// transport failure reaching it.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc: code=%d message=%s", e.Code, e.Message)
}

type ClientConfig struct {
	// URL is the JSON-RPC endpoint of a ledger fullnode.
	URL        string
	HTTPClient *http.Client
}

// Client speaks JSON-RPC 2.0 to a ledger fullnode. It carries no retry
// policy of its own; callers decide which operations are safe to repeat.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(c ClientConfig) *Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: c.URL, http: c.HTTPClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call performs a single JSON-RPC call. Transport failures come back coded
// Unavailable; node-reported failures come back as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Internal(fmt.Errorf("ledger: marshal %s request: %w", method, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Internal(fmt.Errorf("ledger: build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ledger: %s call failed", method),
			errors.WithCause(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ledger: read %s response", method),
			errors.WithCause(err))
	}
	if resp.StatusCode/100 != 2 {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ledger: %s returned %d: %s", method, resp.StatusCode, body))
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ledger: malformed %s response", method),
			errors.WithCause(err))
	}
	if rr.Error != nil {
		return rr.Error
	}

	if result != nil {
		if err := json.Unmarshal(rr.Result, result); err != nil {
			return errors.Internal(fmt.Errorf("ledger: unmarshal %s result: %w", method, err))
		}
	}
	return nil
}

// GetBalance returns the aggregate balance of a coin type held by owner.
func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (uint64, error) {
	var res struct {
		TotalBalance string `json:"totalBalance"`
	}
	params := map[string]string{"owner": owner, "coinType": coinType}
	if err := c.Call(ctx, "ledger_getBalance", params, &res); err != nil {
		return 0, err
	}

	balance, err := strconv.ParseUint(res.TotalBalance, 10, 64)
	if err != nil {
		return 0, errors.Internal(fmt.Errorf("ledger: parse balance %q: %w", res.TotalBalance, err))
	}
	return balance, nil
}

// GetObject fetches an object by id. A missing object maps to
// domain.ErrQuizNotFound rather than a transport error.
func (c *Client) GetObject(ctx context.Context, id string) (RawObject, error) {
	var res struct {
		Object *RawObject `json:"object"`
	}
	params := map[string]string{"id": id}
	if err := c.Call(ctx, "ledger_getObject", params, &res); err != nil {
		return RawObject{}, err
	}
	if res.Object == nil {
		return RawObject{}, domain.ErrQuizNotFound
	}
	return *res.Object, nil
}

// GetOwnedObjects lists objects of structType owned by owner, in the stable
// order the node reports them.
func (c *Client) GetOwnedObjects(ctx context.Context, owner, structType string) ([]RawObject, error) {
	var res struct {
		Objects []RawObject `json:"objects"`
	}
	params := map[string]string{"owner": owner, "structType": structType}
	if err := c.Call(ctx, "ledger_getOwnedObjects", params, &res); err != nil {
		return nil, err
	}
	return res.Objects, nil
}

// Submit sends a signed transaction for execution and finalization.
func (c *Client) Submit(ctx context.Context, signed SignedTransaction) (TxResult, error) {
	var res TxResult
	if err := c.Call(ctx, "ledger_submitTransaction", signed, &res); err != nil {
		return TxResult{}, err
	}
	return res, nil
}
