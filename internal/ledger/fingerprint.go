package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Fingerprint binds a decryption request to the exact ciphertexts it
// targets and to the ledger instance that issued it:
//
//	keccak256(keccak256(ct_0) || … || keccak256(ct_n) || chainID || system)
//
// chainID and system are each encoded in a 32-byte word, so an answer for
// one deployment can never satisfy another.
func Fingerprint(ciphertexts [][]byte, chainID *big.Int, system common.Address) common.Hash {
	data := make([]byte, 0, 32*len(ciphertexts)+64)
	for _, ct := range ciphertexts {
		data = append(data, crypto.Keccak256(ct)...)
	}
	word := make([]byte, 32)
	if chainID != nil {
		chainID.FillBytes(word)
	}
	data = append(data, word...)
	data = append(data, common.LeftPadBytes(system.Bytes(), 32)...)
	return crypto.Keccak256Hash(data)
}
