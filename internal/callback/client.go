// Package callback delivers oracle results to a remote ledgerd over HTTP.
package callback

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-sealed-ledger/internal/auth"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
)

// Route, full path and signed action of the ledger's callback endpoint.
const (
	Route  = "/oracle/callback"
	Path   = "/api/v1" + Route
	Action = "oracle_callback"
)

// Error codes the ledger answers with.
const (
	CodeReplayAttempt = "replay_attempt"
	CodeInternal      = "internal"
)

const signatureTTL = time.Minute

// Body is the signed payload of a callback.
type Body struct {
	RequestID uint64        `json:"request_id"`
	Payload   hexutil.Bytes `json:"payload"`
	Proof     hexutil.Bytes `json:"proof"`
}

// ErrorResponse is the ledger's error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Client implements oracle.Deliverer. Requests are signed with the oracle
// key so the ledger sees the oracle identity as caller.
type Client struct {
	baseURL string
	key     *ecdsa.PrivateKey
	http    *http.Client
}

func NewClient(baseURL string, key *ecdsa.PrivateKey) *Client {
	return &Client{
		baseURL: baseURL,
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path, action string, payload any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if err := auth.SignRequest(req, c.key, action, payload, signatureTTL); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Deliver posts a signed result. A 4xx answer is final: replays map to
// oracle.ErrAlreadyFinalized and everything else to oracle.ErrRejected.
// Transport failures and 5xx answers are returned as is.
func (c *Client) Deliver(ctx context.Context, requestID uint64, payload, sig []byte) error {
	resp, err := c.do(ctx, http.MethodPost, Path, Action, Body{RequestID: requestID, Payload: payload, Proof: sig})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er ErrorResponse
	_ = json.Unmarshal(raw, &er)
	switch {
	case er.Code == CodeReplayAttempt:
		return fmt.Errorf("%w: request %d", oracle.ErrAlreadyFinalized, requestID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("callback %d: rate limited", requestID)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: request %d: status %d: %s", oracle.ErrRejected, requestID, resp.StatusCode, er.Error)
	default:
		return fmt.Errorf("callback %d: status %d", requestID, resp.StatusCode)
	}
}
