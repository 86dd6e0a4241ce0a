// Package ratelimit tracks per-participant cooldowns. Each action class has
// its own clock: a submission never delays a decryption request and vice
// versa.
package ratelimit

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrCooldownActive = errors.New("cooldown active")

// Class identifies an independently throttled action.
type Class uint8

const (
	Submission Class = iota
	DecryptionRequest
)

func (c Class) String() string {
	switch c {
	case Submission:
		return "submission"
	case DecryptionRequest:
		return "decryption_request"
	default:
		return "unknown"
	}
}

// Clock supplies the current time; tests inject a fake one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Tracker stores the last successful action time (unix seconds) per class
// and participant. Like access.Registry it relies on the caller for locking.
type Tracker struct {
	last map[Class]map[common.Address]int64
}

func NewTracker() *Tracker {
	return &Tracker{last: map[Class]map[common.Address]int64{
		Submission:        {},
		DecryptionRequest: {},
	}}
}

// Check returns ErrCooldownActive unless now >= last + cooldownSec. A
// participant with no recorded action always passes.
func (t *Tracker) Check(class Class, who common.Address, now, cooldownSec int64) error {
	last, ok := t.last[class][who]
	if !ok {
		return nil
	}
	if now < last+cooldownSec {
		return ErrCooldownActive
	}
	return nil
}

// Record stores now as the participant's last action for class.
func (t *Tracker) Record(class Class, who common.Address, now int64) {
	m, ok := t.last[class]
	if !ok {
		m = make(map[common.Address]int64)
		t.last[class] = m
	}
	m[who] = now
}

// Last returns the recorded time and whether one exists.
func (t *Tracker) Last(class Class, who common.Address) (int64, bool) {
	v, ok := t.last[class][who]
	return v, ok
}
