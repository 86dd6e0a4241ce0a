package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned for signatures that are not 65 bytes or
// carry a recovery id outside {0,1,27,28}.
var ErrInvalidSignature = errors.New("invalid signature")

// HashMessage returns keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func HashMessage(msg []byte) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// Sign produces the wallet-style signature over msg (V in 27/28).
func Sign(msg []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(HashMessage(msg), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced sig over msg. Wallets emit V as
// 27/28 while go-ethereum uses 0/1; both are accepted.
func Recover(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	rsv := make([]byte, crypto.SignatureLength)
	copy(rsv, sig)
	switch v := rsv[64]; v {
	case 0, 1:
	case 27, 28:
		rsv[64] = v - 27
	default:
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, v)
	}

	pub, err := crypto.SigToPub(HashMessage(msg), rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
