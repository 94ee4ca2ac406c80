package governor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/governor"
)

type recordingSubscriber struct {
	paused, resumed int
}

func (r *recordingSubscriber) Pause()  { r.paused++ }
func (r *recordingSubscriber) Resume() { r.resumed++ }

func TestSelectTier_ExtractAlwaysExtract(t *testing.T) {
	g := governor.New(governor.DefaultConfig())
	assert.Equal(t, governor.TierExtract, g.SelectTier(governor.TaskExtract))
}

func TestSelectTier_DowngradesUnderPressure(t *testing.T) {
	cfg := governor.DefaultConfig()
	cfg.MinFreeRAMBytes = 1 << 62 // force downgrade regardless of host state
	g := governor.New(cfg)
	assert.Equal(t, governor.TierExtract, g.SelectTier(governor.TaskReason))
}

func TestRunExclusive_BroadcastsPauseResumeForReasonTier(t *testing.T) {
	g := governor.New(governor.DefaultConfig())
	sub := &recordingSubscriber{}
	g.Subscribe(sub)

	err := g.RunExclusive(context.Background(), governor.TierReason, func(ctx context.Context) error {
		assert.Equal(t, 1, sub.paused)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sub.resumed)
}

func TestRunExclusive_NoBroadcastForExtractTier(t *testing.T) {
	g := governor.New(governor.DefaultConfig())
	sub := &recordingSubscriber{}
	g.Subscribe(sub)

	err := g.RunExclusive(context.Background(), governor.TierExtract, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sub.paused)
}

func TestRunExclusive_PropagatesCancellation(t *testing.T) {
	g := governor.New(governor.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.RunExclusive(ctx, governor.TierExtract, func(ctx context.Context) error {
		t.Fatal("fn should not run when context already cancelled")
		return nil
	})
	assert.Error(t, err)
}

func TestIdleTiers_DetectsStaleLoad(t *testing.T) {
	cfg := governor.DefaultConfig()
	cfg.IdleUnloadAfter = 0 // immediately idle for this test
	g := governor.New(cfg)
	_ = g.RunExclusive(context.Background(), governor.TierExtract, func(ctx context.Context) error { return nil })

	idle := g.IdleTiers(time.Now().Add(time.Millisecond))
	assert.Contains(t, idle, governor.TierExtract)
}
