package generator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyBackOff(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		want   []time.Duration
	}{
		{
			name:   "default doubles",
			policy: DefaultRetryPolicy(),
			want:   []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second},
		},
		{
			name:   "capped",
			policy: RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second},
			want:   []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:   "uncapped",
			policy: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second},
			want:   []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name:   "base above cap",
			policy: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: 10 * time.Second},
			want:   []time.Duration{10 * time.Second, 10 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bo := tt.policy.newBackOff()
			for i, want := range tt.want {
				if got := bo.NextBackOff(); got != want {
					t.Errorf("delay %d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestRetryPolicyAttempts(t *testing.T) {
	for in, want := range map[int]int{-1: 1, 0: 1, 1: 1, 5: 5} {
		if got := (RetryPolicy{MaxAttempts: in}).attempts(); got != want {
			t.Errorf("attempts(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := SleepContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("zero delay on a canceled context: %v", err)
	}
}
