package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func quotaHeaders(remaining, reset string) http.Header {
	headers := http.Header{}
	if remaining != "" {
		headers.Set(HeaderRemaining, remaining)
	}
	if reset != "" {
		headers.Set(HeaderReset, reset)
	}
	return headers
}

func TestUpdateFromHeaders_ValidHeaders(t *testing.T) {
	tests := []struct {
		name        string
		remaining   string
		reset       string
		wantRemain  int
		wantHealthy bool
	}{
		{"healthy state", "100", "60", 100, true},
		{"warning state", "15", "30", 15, false},
		{"critical state", "3", "45", 3, false},
		{"at healthy threshold", "50", "60", 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(nil, quietLogger())
			ctx := context.Background()

			if err := tracker.UpdateFromHeaders(ctx, quotaHeaders(tt.remaining, tt.reset)); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Remaining != tt.wantRemain {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemain)
			}
			if state.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.wantHealthy)
			}
			if state.TimeUntilReset() <= 0 {
				t.Error("ResetAt should lie in the future")
			}
		})
	}
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	tracker := NewTracker(nil, quietLogger())

	tests := []struct {
		name      string
		remaining string
		reset     string
		wantErr   bool
	}{
		{"missing remaining header", "", "60", false},
		{"both headers missing", "", "", false},
		{"invalid remaining header", "invalid", "60", true},
		{"invalid reset header", "100", "invalid", true},
		{"missing reset header", "100", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tracker.UpdateFromHeaders(context.Background(), quotaHeaders(tt.remaining, tt.reset))
			if tt.wantErr && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestGetState_DefaultIsHealthy(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), quietLogger())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy || state.NeedsCriticalBlock() || state.NeedsThrottling() {
		t.Errorf("default state = %+v, want healthy", state)
	}
}

func TestShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name      string
		remaining string
		wantAllow bool
	}{
		{"healthy", "100", true},
		{"throttled", "10", true},
		{"critical", "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(nil, quietLogger())
			tracker.SetThrottleDelay(10 * time.Millisecond)
			ctx := context.Background()

			if err := tracker.UpdateFromHeaders(ctx, quotaHeaders(tt.remaining, "60")); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllow {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.wantAllow)
			}
		})
	}
}

func TestShouldAllowRequest_ThrottleHonoursContext(t *testing.T) {
	tracker := NewTracker(nil, quietLogger())
	tracker.SetThrottleDelay(time.Hour)

	if err := tracker.UpdateFromHeaders(context.Background(), quotaHeaders("10", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed {
		t.Error("ShouldAllowRequest() allowed a request after its context expired")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("throttle wait ignored the context: %v", elapsed)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*QuotaState, error) { return nil, errors.New("boom") }
func (failingStore) Save(context.Context, *QuotaState) error  { return errors.New("boom") }

func TestTracker_StoreErrors(t *testing.T) {
	tracker := NewTracker(failingStore{}, quietLogger())
	ctx := context.Background()

	if _, err := tracker.ShouldAllowRequest(ctx); err == nil {
		t.Error("ShouldAllowRequest() should surface store errors")
	}
	if err := tracker.UpdateFromHeaders(ctx, quotaHeaders("10", "60")); err == nil {
		t.Error("UpdateFromHeaders() should surface store errors")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := &QuotaState{Remaining: 42}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	state.Remaining = 1

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", loaded.Remaining)
	}

	if err := store.Save(ctx, nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}
