// cmd/sealctl is the operator and provider helper for a sealed ledger.
//
// Usage:
//
//	sealctl keygen
//	sealctl encrypt -pk 0x<fhe public key> -value 25
//	sealctl decrypt -sk 0x<fhe secret key> -ct 0x<ciphertext>
//	SEALCTL_PRIVATE_KEY=0x<key> sealctl call \
//	  -url http://localhost:8080 -method POST \
//	  -path /batches/current/payments -action submit_payment \
//	  -payload '{"ciphertext":"0x…"}'
//	sealctl redrive -redis localhost:6379 -limit 0
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-sealed-ledger/internal/auth"
	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "keygen":
		keygen()
	case "encrypt":
		encrypt(args)
	case "decrypt":
		decrypt(args)
	case "call":
		call(args)
	case "redrive":
		redrive(args)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sealctl keygen | encrypt | decrypt | call | redrive [flags]")
	os.Exit(2)
}

func keygen() {
	pk, sk, err := fhe.GenerateKey()
	if err != nil {
		fatalf("generate fhe key: %v", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		fatalf("generate oracle key: %v", err)
	}
	fmt.Printf("FHE_PUBLIC_KEY=%s\n", pk.Hex())
	fmt.Printf("FHE_SECRET_KEY=%s\n", sk.Hex())
	fmt.Printf("ORACLE_ADDRESS=%s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Printf("ORACLE_PRIVATE_KEY=0x%s\n", hex.EncodeToString(crypto.FromECDSA(key)))
}

func encrypt(args []string) {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	pkHex := fs.String("pk", os.Getenv("FHE_PUBLIC_KEY"), "FHE public key")
	value := fs.Uint("value", 0, "amount to encrypt (uint32)")
	_ = fs.Parse(args)

	if *value > 1<<32-1 {
		fatalf("value %d does not fit in 32 bits", *value)
	}
	pk, err := fhe.ParsePublicKey(*pkHex)
	if err != nil {
		fatalf("parse public key: %v", err)
	}
	ct, err := pk.EncryptValue(uint32(*value))
	if err != nil {
		fatalf("encrypt: %v", err)
	}
	fmt.Println(ct.Hex())
}

func decrypt(args []string) {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	skHex := fs.String("sk", os.Getenv("FHE_SECRET_KEY"), "FHE secret key")
	ctHex := fs.String("ct", "", "ciphertext")
	maxTotal := fs.Uint64("max", 1<<36, "largest plaintext to search for")
	_ = fs.Parse(args)

	sk, err := fhe.ParseSecretKey(*skHex)
	if err != nil {
		fatalf("parse secret key: %v", err)
	}
	ct, err := fhe.ParseHex(*ctHex)
	if err != nil {
		fatalf("parse ciphertext: %v", err)
	}
	v, err := sk.Decrypt(ct, *maxTotal)
	if err != nil {
		fatalf("decrypt: %v", err)
	}
	fmt.Println(v)
}

func call(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	url := fs.String("url", "http://localhost:8080", "ledgerd base URL")
	method := fs.String("method", http.MethodPost, "HTTP method")
	path := fs.String("path", "", "route under /api/v1")
	action := fs.String("action", "", "signed action name (empty for unsigned reads)")
	payload := fs.String("payload", "{}", "JSON payload")
	_ = fs.Parse(args)

	req, err := http.NewRequest(*method, strings.TrimRight(*url, "/")+"/api/v1"+*path, nil)
	if err != nil {
		fatalf("build request: %v", err)
	}
	if *action != "" {
		keyHex := strings.TrimPrefix(os.Getenv("SEALCTL_PRIVATE_KEY"), "0x")
		if keyHex == "" {
			fatalf("SEALCTL_PRIVATE_KEY not set")
		}
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			fatalf("parse private key: %v", err)
		}
		if err := auth.SignRequest(req, key, *action, json.RawMessage(*payload), time.Minute); err != nil {
			fatalf("sign request: %v", err)
		}
	}

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	fmt.Printf("%s\n%s\n", resp.Status, body)
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

// redrive puts dead-lettered decryption jobs back on the oracle queue.
func redrive(args []string) {
	fs := flag.NewFlagSet("redrive", flag.ExitOnError)
	addr := fs.String("redis", "localhost:6379", "Redis address")
	password := fs.String("password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	limit := fs.Int("limit", 0, "max entries to move (0 = all)")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	rdb := redis.NewClient(&redis.Options{Addr: *addr, Password: *password})
	defer rdb.Close()

	res, err := oracle.Redrive(ctx, rdb, *limit)
	if err != nil {
		fatalf("redrive: %v", err)
	}
	fmt.Printf("requeued=%d skipped=%d\n", res.Requeued, res.Skipped)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
