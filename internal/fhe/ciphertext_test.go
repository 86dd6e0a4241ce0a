package fhe

import (
	"encoding/json"
	"testing"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/ethereum/go-ethereum/common/hexutil"
	qt "github.com/frankban/quicktest"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCanonicalBytes(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	z, err := pk.EncryptValue(3)
	c.Assert(err, qt.IsNil)
	b := z.Bytes()
	c.Assert(b, qt.HasLen, CiphertextSize)

	back, err := Parse(b)
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(z), qt.IsTrue)
	c.Assert(back.Bytes(), qt.DeepEquals, b)
}

func TestZeroBytesStable(t *testing.T) {
	c := qt.New(t)
	c.Assert(Zero().Bytes(), qt.DeepEquals, Zero().Bytes())
	back, err := Parse(Zero().Bytes())
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(Zero()), qt.IsTrue)
}

func TestParse_WrongLength(t *testing.T) {
	c := qt.New(t)
	_, err := Parse(make([]byte, 10))
	c.Assert(err, qt.ErrorIs, ErrMalformedCiphertext)
}

// torsionPoint returns (0, -1), the point of order two.
func torsionPoint() tedwards.PointAffine {
	var p tedwards.PointAffine
	p.X.SetZero()
	p.Y.SetOne()
	p.Y.Neg(&p.Y)
	return p
}

func TestParse_RejectsSmallOrderPoint(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	z, err := pk.EncryptValue(4)
	c.Assert(err, qt.IsNil)

	tp := torsionPoint()
	c.Assert(tp.IsOnCurve(), qt.IsTrue)
	tb := tp.Bytes()

	// Torsion point as C1, then mixed into a valid C2.
	b := z.Bytes()
	copy(b[:PointSize], tb[:])
	_, err = Parse(b)
	c.Assert(err, qt.ErrorIs, ErrMalformedCiphertext)

	var mixed tedwards.PointAffine
	mixed.Add(&z.C2, &tp)
	c.Assert(mixed.IsOnCurve(), qt.IsTrue)
	mb := mixed.Bytes()
	b = z.Bytes()
	copy(b[PointSize:], mb[:])
	_, err = Parse(b)
	c.Assert(err, qt.ErrorIs, ErrMalformedCiphertext)

	_, err = ParsePublicKey(hexutil.Encode(tb[:]))
	c.Assert(err, qt.ErrorIs, ErrInvalidKey)
}

func TestCiphertextJSON(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	z, err := pk.EncryptValue(11)
	c.Assert(err, qt.IsNil)

	raw, err := json.Marshal(struct {
		C *Ciphertext `json:"c"`
	}{z})
	c.Assert(err, qt.IsNil)

	var out struct {
		C *Ciphertext `json:"c"`
	}
	c.Assert(json.Unmarshal(raw, &out), qt.IsNil)
	c.Assert(out.C.Equal(z), qt.IsTrue)
}

func TestCloneIsIndependent(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	a, err := pk.EncryptValue(1)
	c.Assert(err, qt.IsNil)
	b, err := pk.EncryptValue(2)
	c.Assert(err, qt.IsNil)

	cl := a.Clone()
	cl.Add(cl, b)
	c.Assert(cl.Equal(a), qt.IsFalse)
}

// Aggregation must not depend on the order contributions arrive in.
func TestAddOrderIndependent(t *testing.T) {
	pk, sk, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("forward and reverse sums decrypt to the plaintext sum", prop.ForAll(
		func(values []uint16) bool {
			cts := make([]*Ciphertext, len(values))
			var want uint64
			for i, v := range values {
				ct, err := pk.EncryptValue(uint32(v))
				if err != nil {
					return false
				}
				cts[i] = ct
				want += uint64(v)
			}
			fwd, rev := Zero(), Zero()
			for i := range cts {
				fwd.Add(fwd, cts[i])
				rev.Add(rev, cts[len(cts)-1-i])
			}
			if !fwd.Equal(rev) {
				return false
			}
			got, err := sk.Decrypt(fwd, 1<<24)
			return err == nil && got == want
		},
		gen.SliceOfN(8, gen.UInt16()),
	))

	properties.TestingRun(t)
}
