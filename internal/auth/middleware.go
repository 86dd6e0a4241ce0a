package auth

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Header names carried by every signed request.
const (
	HeaderAddress   = "X-Wallet-Address"
	HeaderMessage   = "X-Signed-Message"
	HeaderSignature = "X-Wallet-Signature"
)

// Gin context keys set by Middleware.
const (
	CallerKey  = "wallet_address"
	RequestKey = "signed_request"
)

// NonceKeyFmt is the Redis key used to reject a reused nonce.
const NonceKeyFmt = "auth:nonce:%s:%s" // %s = caller (checksummed), nonce

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
type SignedRequest struct {
	Action     string          `json:"action"`
	ExpiresAt  int64           `json:"expires_at"`
	Nonce      string          `json:"nonce"`
	Payload    json.RawMessage `json:"payload"`
	ResourceID string          `json:"resource_id"`
}

const maxFutureWindow = 5 * time.Minute

var ErrActionMismatch = errors.New("signed action does not match route")

// Middleware authenticates the caller from its EIP-191 signature over the
// X-Signed-Message payload. On success the caller's address and the decoded
// SignedRequest are stored on the context.
func Middleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, req, status, msg := verify(c, rdb)
		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(CallerKey, caller)
		c.Set(RequestKey, req)
		c.Next()
	}
}

func verify(c *gin.Context, rdb *redis.Client) (common.Address, *SignedRequest, int, string) {
	walletAddr := c.GetHeader(HeaderAddress)
	signedMsgB64 := c.GetHeader(HeaderMessage)
	sigHex := c.GetHeader(HeaderSignature)
	if walletAddr == "" || signedMsgB64 == "" || sigHex == "" {
		return common.Address{}, nil, http.StatusUnauthorized, "missing auth headers"
	}
	if !common.IsHexAddress(walletAddr) {
		return common.Address{}, nil, http.StatusUnauthorized, "invalid wallet address"
	}

	msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
	if err != nil {
		return common.Address{}, nil, http.StatusUnauthorized, "invalid X-Signed-Message encoding"
	}
	var req SignedRequest
	if err := json.Unmarshal(msgBytes, &req); err != nil {
		return common.Address{}, nil, http.StatusUnauthorized, "invalid signed message JSON"
	}

	now := time.Now().Unix()
	if req.ExpiresAt <= now {
		return common.Address{}, nil, http.StatusUnauthorized, "request expired"
	}
	if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
		return common.Address{}, nil, http.StatusUnauthorized, "expires_at too far in future"
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, nil, http.StatusUnauthorized, "invalid signature hex"
	}
	recovered, err := Recover(msgBytes, sig)
	if err != nil || recovered != common.HexToAddress(walletAddr) {
		return common.Address{}, nil, http.StatusUnauthorized, "invalid signature"
	}

	// nonce lives exactly as long as the request could still be accepted
	nonceKey := fmt.Sprintf(NonceKeyFmt, recovered.Hex(), req.Nonce)
	ttl := time.Duration(req.ExpiresAt-now) * time.Second
	set, err := rdb.SetNX(c.Request.Context(), nonceKey, 1, ttl).Result()
	if err != nil {
		return common.Address{}, nil, http.StatusInternalServerError, "internal error"
	}
	if !set {
		return common.Address{}, nil, http.StatusUnauthorized, "nonce already used"
	}
	return recovered, &req, 0, ""
}

// Caller returns the authenticated address set by Middleware.
func Caller(c *gin.Context) common.Address {
	v, _ := c.Get(CallerKey)
	addr, _ := v.(common.Address)
	return addr
}

// BindPayload checks that the signed action is action and decodes the signed
// payload into dst. A nil dst only checks the action.
func BindPayload(c *gin.Context, action string, dst any) error {
	v, ok := c.Get(RequestKey)
	req, _ := v.(*SignedRequest)
	if !ok || req == nil {
		return errors.New("request not authenticated")
	}
	if req.Action != action {
		return fmt.Errorf("%w: got %q want %q", ErrActionMismatch, req.Action, action)
	}
	if dst == nil || len(req.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
