package scheduler

import (
	"context"
	"time"

	"agriweather/internal/types"
)

// ownerSkipReason returns why the owner cannot be messaged, or "".
func ownerSkipReason(u *types.User) string {
	if u.Reachable() {
		return ""
	}
	switch {
	case u == nil || u.Phone == "":
		return SkipNoPhone
	case u.Blocked:
		return SkipBlocked
	}
	return SkipOptedOut
}

// retrier bounds retries of upstream calls. Only errors for which
// types.Retryable holds are retried; the wait doubles after each attempt.
type retrier struct {
	attempts int
	wait     time.Duration
	sleep    func(context.Context, time.Duration) error
}

func newRetrier(attempts int, wait time.Duration) retrier {
	if attempts < 1 {
		attempts = 1
	}
	return retrier{attempts: attempts, wait: wait, sleep: sleepCtx}
}

func (r retrier) do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	wait := r.wait
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= r.attempts || !types.Retryable(err) {
			return err
		}
		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			return err
		}
		wait *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
