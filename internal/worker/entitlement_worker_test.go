package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/iap_core/internal/models"
	"github.com/GTDGit/iap_core/pkg/appstore"
)

// fakeValidator returns canned results and counts calls.
type fakeValidator struct {
	calls  atomic.Int32
	result *appstore.ValidationResult
	err    error
}

func (v *fakeValidator) Validate(ctx context.Context, password string) (*appstore.ValidationResult, error) {
	v.calls.Add(1)
	return v.result, v.err
}

func TestEntitlementWorkerTracksExpirations(t *testing.T) {
	expiresAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v := &fakeValidator{result: &appstore.ValidationResult{
		Status:   appstore.StatusValid,
		Products: models.ProductExpirationMap{"plus": expiresAt},
	}}
	w := NewEntitlementWorker(v, "secret", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	// The first validation runs immediately, before the first tick.
	require.Eventually(t, func() bool { return w.Current() != nil }, time.Second, 10*time.Millisecond)
	current := w.Current()
	require.Len(t, current, 1)
	assert.True(t, current["plus"].Equal(expiresAt))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
	assert.Equal(t, int32(1), v.calls.Load())
}

func TestEntitlementWorkerIgnoresFailedValidation(t *testing.T) {
	v := &fakeValidator{err: appstore.ErrVerifyUnavailable}
	w := NewEntitlementWorker(v, "", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	require.Eventually(t, func() bool { return v.calls.Load() > 0 }, time.Second, 10*time.Millisecond)
	assert.Nil(t, w.Current())
	cancel()
	<-done
}

func TestEntitlementWorkerNoReceipt(t *testing.T) {
	v := &fakeValidator{result: &appstore.ValidationResult{Status: appstore.StatusNoReceipt}}
	w := NewEntitlementWorker(v, "", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	require.Eventually(t, func() bool { return v.calls.Load() > 0 }, time.Second, 10*time.Millisecond)
	assert.Nil(t, w.Current(), "no receipt must not produce an expiration map")
	cancel()
	<-done
}

func TestEntitlementWorkerCurrentReturnsSnapshot(t *testing.T) {
	v := &fakeValidator{result: &appstore.ValidationResult{
		Status:   appstore.StatusValid,
		Products: models.ProductExpirationMap{"plus": time.Unix(0, 0)},
	}}
	w := NewEntitlementWorker(v, "", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.Eventually(t, func() bool { return w.Current() != nil }, time.Second, 10*time.Millisecond)

	snapshot := w.Current()
	snapshot["pro"] = time.Now()
	assert.Len(t, w.Current(), 1, "mutating the snapshot must not affect the worker")
}
