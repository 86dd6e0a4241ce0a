package fhe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	curve = tedwards.GetEdwardsCurve()

	ErrInvalidKey    = errors.New("fhe: invalid key")
	ErrOutOfRange    = errors.New("fhe: plaintext outside search range")
	ErrSecretMissing = errors.New("fhe: secret key not loaded")
)

// PublicKey is PK = d*G.
type PublicKey struct {
	P tedwards.PointAffine
}

// SecretKey is the scalar d. Only the oracle holds it.
type SecretKey struct {
	D *big.Int
}

// GenerateKey returns a fresh key pair.
func GenerateKey() (*PublicKey, *SecretKey, error) {
	d, err := rand.Int(rand.Reader, &curve.Order)
	if err != nil {
		return nil, nil, fmt.Errorf("generate secret scalar: %w", err)
	}
	if d.Sign() == 0 {
		d.SetInt64(1)
	}
	sk := &SecretKey{D: d}
	return sk.Public(), sk, nil
}

// Public derives the public key.
func (sk *SecretKey) Public() *PublicKey {
	pk := &PublicKey{}
	pk.P.ScalarMultiplication(&curve.Base, sk.D)
	return pk
}

// Hex returns the 32-byte big-endian scalar as 0x-hex.
func (sk *SecretKey) Hex() string {
	b := make([]byte, 32)
	sk.D.FillBytes(b)
	return hexutil.Encode(b)
}

// ParseSecretKey decodes a 0x-hex scalar.
func ParseSecretKey(s string) (*SecretKey, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	d := new(big.Int).SetBytes(b)
	if d.Sign() == 0 || d.Cmp(&curve.Order) >= 0 {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidKey)
	}
	return &SecretKey{D: d}, nil
}

// Hex returns the compressed point as 0x-hex.
func (pk *PublicKey) Hex() string {
	b := pk.P.Bytes()
	return hexutil.Encode(b[:])
}

// ParsePublicKey decodes a compressed point.
func ParsePublicKey(s string) (*PublicKey, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != PointSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(b))
	}
	pk := &PublicKey{}
	if err := pk.P.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if !pk.P.IsOnCurve() || pk.P.IsZero() || !inSubgroup(&pk.P) {
		return nil, fmt.Errorf("%w: bad point", ErrInvalidKey)
	}
	return pk, nil
}

// EncryptValue encrypts m with fresh randomness.
func (pk *PublicKey) EncryptValue(m uint32) (*Ciphertext, error) {
	k, err := randK()
	if err != nil {
		return nil, err
	}
	return pk.EncryptWithK(new(big.Int).SetUint64(uint64(m)), k), nil
}

// EncryptZero encrypts 0 with fresh randomness, so the result is not
// distinguishable from any other contribution.
func (pk *PublicKey) EncryptZero() (*Ciphertext, error) {
	return pk.EncryptValue(0)
}

// EncryptWithK encrypts m with the given randomness k.
func (pk *PublicKey) EncryptWithK(m, k *big.Int) *Ciphertext {
	msg := new(big.Int).Mod(m, &curve.Order)
	z := &Ciphertext{}
	z.C1.ScalarMultiplication(&curve.Base, k)
	var s, mg tedwards.PointAffine
	s.ScalarMultiplication(&pk.P, k)
	mg.ScalarMultiplication(&curve.Base, msg)
	z.C2.Add(&mg, &s)
	return z
}

// Decrypt recovers m from z, searching m in [0, maxMessage].
func (sk *SecretKey) Decrypt(z *Ciphertext, maxMessage uint64) (uint64, error) {
	var dC1, m tedwards.PointAffine
	dC1.ScalarMultiplication(&z.C1, sk.D)
	dC1.Neg(&dC1)
	m.Add(&z.C2, &dC1)
	return discreteLog(&m, maxMessage)
}

// discreteLog solves M = x*G for x in [0, maxMessage] with baby-step giant-step.
func discreteLog(M *tedwards.PointAffine, maxMessage uint64) (uint64, error) {
	n := uint64(math.Sqrt(float64(maxMessage))) + 1

	baby := make(map[[PointSize]byte]uint64, n)
	var step tedwards.PointAffine
	setIdentity(&step)
	for j := uint64(0); j < n; j++ {
		baby[step.Bytes()] = j
		step.Add(&step, &curve.Base)
	}

	// giant = -n*G
	var giant tedwards.PointAffine
	giant.ScalarMultiplication(&curve.Base, new(big.Int).SetUint64(n))
	giant.Neg(&giant)

	var cur tedwards.PointAffine
	cur.Set(M)
	for i := uint64(0); i <= n; i++ {
		if j, ok := baby[cur.Bytes()]; ok {
			x := i*n + j
			if x > maxMessage {
				break
			}
			return x, nil
		}
		cur.Add(&cur, &giant)
	}
	return 0, ErrOutOfRange
}

func randK() (*big.Int, error) {
	k, err := rand.Int(rand.Reader, &curve.Order)
	if err != nil {
		return nil, fmt.Errorf("fhe: random k: %w", err)
	}
	return k, nil
}
