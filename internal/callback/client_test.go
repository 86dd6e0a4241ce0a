package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-sealed-ledger/internal/auth"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newServer runs the real auth middleware in front of a handler that
// answers with status and body.
func newServer(t *testing.T, status int, body any, got *Body) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := gin.New()
	r.POST(Path, auth.Middleware(rdb), func(c *gin.Context) {
		if got != nil {
			if err := auth.BindPayload(c, Action, got); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
		}
		c.JSON(status, body)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestDeliver_OK(t *testing.T) {
	var got Body
	srv := newServer(t, http.StatusOK, map[string]uint64{"total": 25}, &got)
	key, _ := crypto.GenerateKey()

	err := NewClient(srv.URL, key).Deliver(context.Background(), 7, []byte{0x19}, []byte{0xaa, 0xbb})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.RequestID != 7 || got.Payload[0] != 0x19 || len(got.Proof) != 2 {
		t.Fatalf("server saw %+v", got)
	}
}

func TestDeliver_Classification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   ErrorResponse
		want   error
	}{
		{"replay", http.StatusConflict, ErrorResponse{Error: "replay attempt", Code: CodeReplayAttempt}, oracle.ErrAlreadyFinalized},
		{"unknown request", http.StatusNotFound, ErrorResponse{Error: "unknown request", Code: "unknown_request"}, oracle.ErrRejected},
		{"invalid proof", http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid proof", Code: "invalid_proof"}, oracle.ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.status, tc.body, nil)
			key, _ := crypto.GenerateKey()
			err := NewClient(srv.URL, key).Deliver(context.Background(), 1, nil, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDeliver_TransientErrors(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		srv := newServer(t, status, ErrorResponse{Error: "boom", Code: CodeInternal}, nil)
		key, _ := crypto.GenerateKey()
		err := NewClient(srv.URL, key).Deliver(context.Background(), 1, nil, nil)
		if err == nil || errors.Is(err, oracle.ErrRejected) || errors.Is(err, oracle.ErrAlreadyFinalized) {
			t.Fatalf("status %d: expected transient error, got %v", status, err)
		}
	}
}

func TestDeliver_Unreachable(t *testing.T) {
	key, _ := crypto.GenerateKey()
	err := NewClient("http://127.0.0.1:1", key).Deliver(context.Background(), 1, nil, nil)
	if err == nil || errors.Is(err, oracle.ErrRejected) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
