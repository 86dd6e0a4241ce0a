package proof

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testDomain = Domain{
		ChainID: big.NewInt(16602),
		System:  common.HexToAddress("0xDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEf"),
	}
	testCiphertexts = [][]byte{[]byte("ciphertext-a")}
	testPayload     = append(make([]byte, 31), 25)
)

func newSigned(t *testing.T) ([]byte, Verifier) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := testDomain.Sign(key, 7, testCiphertexts, testPayload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return sig, Verifier{Domain: testDomain, Signer: crypto.PubkeyToAddress(key.PublicKey)}
}

// ── Sign + Verify ──────────────────────────────────────────────────────────

func TestSign_Verify(t *testing.T) {
	sig, v := newSigned(t)
	if len(sig) != SignatureSize {
		t.Fatalf("expected %d-byte proof, got %d", SignatureSize, len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("expected V in {27,28}, got %d", sig[64])
	}
	if !v.Verify(7, testCiphertexts, testPayload, sig) {
		t.Fatal("valid proof rejected")
	}
}

func TestVerify_BindsEveryInput(t *testing.T) {
	sig, v := newSigned(t)
	otherPayload := append(make([]byte, 31), 26)

	cases := []struct {
		name string
		id   uint64
		cts  [][]byte
		pl   []byte
	}{
		{"request id", 8, testCiphertexts, testPayload},
		{"ciphertexts", 7, [][]byte{[]byte("ciphertext-b")}, testPayload},
		{"payload", 7, testCiphertexts, otherPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v.Verify(tc.id, tc.cts, tc.pl, sig) {
				t.Fatal("proof accepted for altered input")
			}
		})
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	sig, v := newSigned(t)
	v.Signer = common.HexToAddress("0x1111111111111111111111111111111111111111")
	if v.Verify(7, testCiphertexts, testPayload, sig) {
		t.Fatal("proof accepted for a different signer")
	}
}

func TestVerify_OtherDomain(t *testing.T) {
	sig, v := newSigned(t)
	v.Domain.ChainID = big.NewInt(1)
	if v.Verify(7, testCiphertexts, testPayload, sig) {
		t.Fatal("proof accepted on a different chain")
	}
}

func TestVerify_Malformed(t *testing.T) {
	_, v := newSigned(t)
	for _, p := range [][]byte{nil, []byte("ok"), make([]byte, SignatureSize)} {
		if v.Verify(7, testCiphertexts, testPayload, p) {
			t.Fatalf("malformed proof %x accepted", p)
		}
	}
}

func TestCiphertextsHash_OrderMatters(t *testing.T) {
	a, b := []byte("a"), []byte("b")
	if CiphertextsHash([][]byte{a, b}) == CiphertextsHash([][]byte{b, a}) {
		t.Fatal("ciphertext order not bound")
	}
}
