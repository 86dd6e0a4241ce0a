package auth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// NewNonce returns a fresh random request nonce.
func NewNonce() string {
	return uuid.NewString()
}

// SignRequest builds a SignedRequest for action and payload valid for ttl
// and sets the three auth headers on r.
func SignRequest(r *http.Request, key *ecdsa.PrivateKey, action string, payload any, ttl time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg, err := json.Marshal(SignedRequest{
		Action:    action,
		ExpiresAt: time.Now().Add(ttl).Unix(),
		Nonce:     NewNonce(),
		Payload:   raw,
	})
	if err != nil {
		return err
	}
	sig, err := Sign(msg, key)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	r.Header.Set(HeaderMessage, base64.StdEncoding.EncodeToString(msg))
	r.Header.Set(HeaderSignature, "0x"+hex.EncodeToString(sig))
	return nil
}
