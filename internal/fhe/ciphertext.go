// Package fhe implements the additively homomorphic ciphertexts used by the
// ledger: exponential ElGamal over the BabyJubJub twisted Edwards curve.
//
// A value m is encrypted as (C1, C2) = (k*G, m*G + k*PK). Component-wise
// point addition of two ciphertexts yields an encryption of the sum, so
// the ledger can aggregate contributions without ever seeing a plaintext.
package fhe

import (
	"errors"
	"fmt"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// PointSize is the length of a compressed curve point.
	PointSize = 32
	// CiphertextSize is the length of the canonical ciphertext encoding (C1 || C2).
	CiphertextSize = 2 * PointSize
)

var ErrMalformedCiphertext = errors.New("fhe: malformed ciphertext")

// Ciphertext is an ElGamal pair of curve points.
type Ciphertext struct {
	C1 tedwards.PointAffine
	C2 tedwards.PointAffine
}

// Zero returns the trivial encryption of 0 (both points at the identity).
// It needs no key and no randomness; adding it to any ciphertext is a no-op.
func Zero() *Ciphertext {
	z := &Ciphertext{}
	setIdentity(&z.C1)
	setIdentity(&z.C2)
	return z
}

// Add sets z = x + y and returns z.
func (z *Ciphertext) Add(x, y *Ciphertext) *Ciphertext {
	var c1, c2 tedwards.PointAffine
	c1.Add(&x.C1, &y.C1)
	c2.Add(&x.C2, &y.C2)
	z.C1, z.C2 = c1, c2
	return z
}

// Clone returns an independent copy.
func (z *Ciphertext) Clone() *Ciphertext {
	c := &Ciphertext{}
	c.C1.Set(&z.C1)
	c.C2.Set(&z.C2)
	return c
}

// Equal reports whether both components match.
func (z *Ciphertext) Equal(o *Ciphertext) bool {
	return z.C1.Equal(&o.C1) && z.C2.Equal(&o.C2)
}

// Bytes returns the canonical 64-byte encoding: compressed C1 followed by
// compressed C2. Fingerprints are computed over this form.
func (z *Ciphertext) Bytes() []byte {
	b1 := z.C1.Bytes()
	b2 := z.C2.Bytes()
	out := make([]byte, 0, CiphertextSize)
	out = append(out, b1[:]...)
	return append(out, b2[:]...)
}

// Hex returns the 0x-prefixed canonical encoding.
func (z *Ciphertext) Hex() string {
	return hexutil.Encode(z.Bytes())
}

// Parse decodes a canonical encoding. Both points must lie in the
// prime-order subgroup: a torsion component would survive every later
// addition and make the aggregate undecryptable.
func Parse(b []byte) (*Ciphertext, error) {
	if len(b) != CiphertextSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedCiphertext, len(b), CiphertextSize)
	}
	z := &Ciphertext{}
	if err := z.C1.Unmarshal(b[:PointSize]); err != nil {
		return nil, fmt.Errorf("%w: c1: %v", ErrMalformedCiphertext, err)
	}
	if err := z.C2.Unmarshal(b[PointSize:]); err != nil {
		return nil, fmt.Errorf("%w: c2: %v", ErrMalformedCiphertext, err)
	}
	if !z.C1.IsOnCurve() || !z.C2.IsOnCurve() {
		return nil, fmt.Errorf("%w: point not on curve", ErrMalformedCiphertext)
	}
	if !inSubgroup(&z.C1) || !inSubgroup(&z.C2) {
		return nil, fmt.Errorf("%w: point outside prime-order subgroup", ErrMalformedCiphertext)
	}
	return z, nil
}

// ParseHex decodes a 0x-prefixed canonical encoding.
func ParseHex(s string) (*Ciphertext, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return Parse(b)
}

// MarshalText implements encoding.TextMarshaler so ciphertexts travel as hex in JSON.
func (z *Ciphertext) MarshalText() ([]byte, error) {
	return []byte(z.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (z *Ciphertext) UnmarshalText(text []byte) error {
	c, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*z = *c
	return nil
}

func setIdentity(p *tedwards.PointAffine) {
	p.X.SetZero()
	p.Y.SetOne()
}

// inSubgroup reports whether [order]p is the identity.
func inSubgroup(p *tedwards.PointAffine) bool {
	var q tedwards.PointAffine
	q.ScalarMultiplication(p, &curve.Order)
	return q.IsZero()
}
