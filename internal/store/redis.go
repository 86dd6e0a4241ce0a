// Package store persists ledger state in Redis. Every change set is written
// in a single MULTI/EXEC so a crash never leaves half an operation behind.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

var throttleClasses = []ratelimit.Class{ratelimit.Submission, ratelimit.DecryptionRequest}

// Redis implements ledger.Store.
type Redis struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func throttleKey(c ratelimit.Class) string {
	return fmt.Sprintf(ThrottleKeyFmt, c)
}

func idField(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Commit writes cs atomically.
func (s *Redis) Commit(ctx context.Context, cs *ledger.ChangeSet) error {
	// Encode everything up front so a marshal error never opens a transaction.
	type hset struct{ key, field, val string }
	var sets []hset
	var payment, events []interface{}

	if cs.Batch != nil {
		raw, err := json.Marshal(cs.Batch)
		if err != nil {
			return fmt.Errorf("encode batch: %w", err)
		}
		sets = append(sets, hset{BatchesKey, idField(cs.Batch.ID), string(raw)})
	}
	if cs.Context != nil {
		raw, err := json.Marshal(cs.Context)
		if err != nil {
			return fmt.Errorf("encode decryption context: %w", err)
		}
		sets = append(sets, hset{ContextsKey, idField(cs.Context.RequestID), string(raw)})
	}
	if cs.Reveal != nil {
		raw, err := json.Marshal(cs.Reveal)
		if err != nil {
			return fmt.Errorf("encode reveal: %w", err)
		}
		sets = append(sets, hset{RevealsKey, idField(cs.Reveal.RequestID), string(raw)})
	}
	if cs.Payment != nil {
		raw, err := json.Marshal(cs.Payment)
		if err != nil {
			return fmt.Errorf("encode payment: %w", err)
		}
		payment = append(payment, string(raw))
	}
	for _, r := range cs.Throttle {
		sets = append(sets, hset{throttleKey(r.Class), r.Who.Hex(), strconv.FormatInt(r.At, 10)})
	}
	for _, e := range cs.Events {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		events = append(events, string(raw))
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if cs.Owner != nil {
			pipe.Set(ctx, OwnerKey, cs.Owner.Hex(), 0)
		}
		if cs.Paused != nil {
			pipe.Set(ctx, PausedKey, strconv.FormatBool(*cs.Paused), 0)
		}
		if cs.Cooldown != nil {
			pipe.Set(ctx, CooldownKey, *cs.Cooldown, 0)
		}
		for id, allowed := range cs.Providers {
			if allowed {
				pipe.SAdd(ctx, ProvidersKey, id.Hex())
			} else {
				pipe.SRem(ctx, ProvidersKey, id.Hex())
			}
		}
		for _, h := range sets {
			pipe.HSet(ctx, h.key, h.field, h.val)
		}
		if len(payment) > 0 {
			pipe.RPush(ctx, PaymentsKey, payment...)
		}
		if len(events) > 0 {
			pipe.RPush(ctx, EventsKey, events...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load reads the full persisted state. An empty database yields a snapshot
// with a nil Owner.
func (s *Redis) Load(ctx context.Context) (*ledger.Snapshot, error) {
	snap := &ledger.Snapshot{}

	owner, err := s.rdb.Get(ctx, OwnerKey).Result()
	switch {
	case err == redis.Nil:
	case err != nil:
		return nil, fmt.Errorf("load owner: %w", err)
	default:
		a := common.HexToAddress(owner)
		snap.Owner = &a
	}

	paused, err := s.rdb.Get(ctx, PausedKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load paused: %w", err)
	}
	snap.Paused = paused == "true"

	cooldown, err := s.rdb.Get(ctx, CooldownKey).Int64()
	switch {
	case err == redis.Nil:
	case err != nil:
		return nil, fmt.Errorf("load cooldown: %w", err)
	default:
		snap.Cooldown = &cooldown
	}

	providers, err := s.rdb.SMembers(ctx, ProvidersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	for _, p := range providers {
		snap.Providers = append(snap.Providers, common.HexToAddress(p))
	}

	if snap.Batches, err = loadHash[ledger.Batch](ctx, s.rdb, BatchesKey); err != nil {
		return nil, err
	}
	for i, b := range snap.Batches {
		if b.ID != uint64(i) {
			return nil, fmt.Errorf("load batches: gap at id %d", i)
		}
	}
	if snap.Contexts, err = loadHash[ledger.DecryptionContext](ctx, s.rdb, ContextsKey); err != nil {
		return nil, err
	}
	if snap.Reveals, err = loadHash[ledger.Reveal](ctx, s.rdb, RevealsKey); err != nil {
		return nil, err
	}

	rawPayments, err := s.rdb.LRange(ctx, PaymentsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	for _, raw := range rawPayments {
		var p ledger.PaymentEntry
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
		snap.Payments = append(snap.Payments, &p)
	}

	for _, class := range throttleClasses {
		vals, err := s.rdb.HGetAll(ctx, throttleKey(class)).Result()
		if err != nil {
			return nil, fmt.Errorf("load throttle %s: %w", class, err)
		}
		for who, at := range vals {
			ts, err := strconv.ParseInt(at, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("decode throttle %s/%s: %w", class, who, err)
			}
			snap.Throttle = append(snap.Throttle, ledger.ThrottleRecord{Class: class, Who: common.HexToAddress(who), At: ts})
		}
	}
	return snap, nil
}

// loadHash decodes every field of an id-keyed hash, ordered by id.
func loadHash[T any](ctx context.Context, rdb *redis.Client, key string) ([]*T, error) {
	vals, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	ids := make([]uint64, 0, len(vals))
	for field := range vals {
		id, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("load %s: bad id %q", key, field)
		}
		ids = append(ids, id)
	}
	sortIDs(ids)
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		v := new(T)
		if err := json.Unmarshal([]byte(vals[idField(id)]), v); err != nil {
			return nil, fmt.Errorf("decode %s/%d: %w", key, id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Events returns up to limit events starting at offset, oldest first.
func (s *Redis) Events(ctx context.Context, offset, limit int64) ([]ledger.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	raws, err := s.rdb.LRange(ctx, EventsKey, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	out := make([]ledger.Event, 0, len(raws))
	for _, raw := range raws {
		var e ledger.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// EventCount returns the number of recorded events.
func (s *Redis) EventCount(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, EventsKey).Result()
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
