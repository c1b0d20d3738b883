package api

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"dealdesk-api/domain"
)

var (
	lastTimestamp int64
)

// nextTimestampRange reserves count strictly increasing nanosecond
// timestamps and returns the first. Commands stamped from one range sort
// after every previously stamped command even within the same nanosecond.
func nextTimestampRange(count int64) int64 {
	if count <= 0 {
		return 0
	}
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		start := now
		if start <= last {
			start = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, start+count-1) {
			return start
		}
	}
}

// finalizeCommands stamps each command with a timestamp, fills in missing
// idempotency keys, and returns the keys in input order.
func finalizeCommands(cmds []domain.Command) []string {
	if len(cmds) == 0 {
		return nil
	}
	start := nextTimestampRange(int64(len(cmds)))
	keys := make([]string, len(cmds))
	for i := range cmds {
		ts := start + int64(i)
		cmds[i].Timestamp = ts
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = strconv.FormatInt(ts, 36)
		}
		cmds[i].ID = cmds[i].IdempotencyKey
		keys[i] = cmds[i].IdempotencyKey
	}
	return keys
}

func envInt(name string, def int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return def
}
