package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyDo(t *testing.T) {
	fast := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0

		err := fast.Do(t.Context(), func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0

		err := fast.Do(t.Context(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("attempts bounded", func(t *testing.T) {
		calls := 0
		transient := errors.New("transient")

		err := fast.Do(t.Context(), func() error {
			calls++
			return transient
		})

		require.ErrorIs(t, err, transient)
		require.Equal(t, 3, calls, "MaxAttempts counts the first try")
	})

	t.Run("permanent error not retried", func(t *testing.T) {
		calls := 0
		rejected := errors.New("rejected")

		err := fast.Do(t.Context(), func() error {
			calls++
			return Permanent(rejected)
		})

		require.ErrorIs(t, err, rejected)
		require.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		calls := 0

		err := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}.Do(ctx, func() error {
			calls++
			cancel()
			return errors.New("transient")
		})

		require.Error(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("zero attempts means one try", func(t *testing.T) {
		calls := 0

		_ = Policy{MaxAttempts: 0, BaseDelay: time.Millisecond}.Do(t.Context(), func() error {
			calls++
			return errors.New("transient")
		})

		require.Equal(t, 1, calls)
	})
}
