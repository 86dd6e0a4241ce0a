// Package proof signs and verifies oracle decryption results. A proof is an
// EIP-712 signature by the oracle key over the request id, the exact
// ciphertexts that were decrypted and the plaintext payload.
package proof

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureSize is the length of a proof: r || s || v.
const SignatureSize = 65

var ErrMalformedProof = errors.New("malformed proof")

var resultTypeHash = crypto.Keccak256Hash([]byte(
	"DecryptionResult(uint256 requestId,bytes32 ciphertextsHash,bytes32 payloadHash)",
))

// Domain scopes proofs to one deployment.
type Domain struct {
	ChainID *big.Int
	System  common.Address
}

func (d Domain) separator() [32]byte {
	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	nameHash := crypto.Keccak256Hash([]byte("0G Sealed Ledger"))
	versionHash := crypto.Keccak256Hash([]byte("1"))

	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	if d.ChainID != nil {
		d.ChainID.FillBytes(encoded[96:128])
	}
	copy(encoded[140:160], d.System.Bytes())
	return crypto.Keccak256Hash(encoded)
}

// CiphertextsHash is keccak256 over the concatenated per-ciphertext hashes.
func CiphertextsHash(ciphertexts [][]byte) common.Hash {
	buf := make([]byte, 0, 32*len(ciphertexts))
	for _, ct := range ciphertexts {
		buf = append(buf, crypto.Keccak256(ct)...)
	}
	return crypto.Keccak256Hash(buf)
}

// Digest is the EIP-712 hash the oracle signs.
func (d Domain) Digest(requestID uint64, ciphertexts [][]byte, payload []byte) [32]byte {
	encoded := make([]byte, 4*32)
	copy(encoded[0:32], resultTypeHash[:])
	new(big.Int).SetUint64(requestID).FillBytes(encoded[32:64])
	cth := CiphertextsHash(ciphertexts)
	copy(encoded[64:96], cth[:])
	ph := crypto.Keccak256Hash(payload)
	copy(encoded[96:128], ph[:])
	structHash := crypto.Keccak256Hash(encoded)
	sep := d.separator()

	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg)
}

// Sign produces the proof for a decryption result.
func (d Domain) Sign(key *ecdsa.PrivateKey, requestID uint64, ciphertexts [][]byte, payload []byte) ([]byte, error) {
	digest := d.Digest(requestID, ciphertexts, payload)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	// V as 27/28 so the proof is ecrecover-compatible
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced proof.
func (d Domain) Recover(requestID uint64, ciphertexts [][]byte, payload, proof []byte) (common.Address, error) {
	if len(proof) != SignatureSize {
		return common.Address{}, ErrMalformedProof
	}
	digest := d.Digest(requestID, ciphertexts, payload)
	sig := make([]byte, SignatureSize)
	copy(sig, proof)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verifier accepts only proofs produced by Signer within Domain.
type Verifier struct {
	Domain Domain
	Signer common.Address
}

func (v Verifier) Verify(requestID uint64, ciphertexts [][]byte, payload, proof []byte) bool {
	addr, err := v.Domain.Recover(requestID, ciphertexts, payload, proof)
	return err == nil && addr == v.Signer
}
