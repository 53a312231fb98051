package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkattest/pkg/types"
)

// TestEventBus_SyncAndAsync 同步与异步订阅
func TestEventBus_SyncAndAsync(t *testing.T) {
	bus := New()

	var received []types.JobState
	require.NoError(t, bus.Subscribe(event.EventTypeJobTransition, func(ev types.JobEvent) {
		received = append(received, ev.To)
	}))

	var mu sync.Mutex
	asyncCount := 0
	require.NoError(t, bus.SubscribeAsync(event.EventTypeJobTransition, func(ev types.JobEvent) {
		mu.Lock()
		asyncCount++
		mu.Unlock()
	}, false))

	require.True(t, bus.HasCallback(event.EventTypeJobTransition))
	require.False(t, bus.HasCallback(event.EventTypeArtifactReady))

	bus.Publish(event.EventTypeJobTransition, types.JobEvent{To: types.JobQueued})
	bus.Publish(event.EventTypeJobTransition, types.JobEvent{To: types.JobProving})
	bus.WaitAsync()

	require.Equal(t, []types.JobState{types.JobQueued, types.JobProving}, received)
	mu.Lock()
	require.Equal(t, 2, asyncCount)
	mu.Unlock()
	require.EqualValues(t, 2, bus.PublishedCount())
}

// TestEventBus_Unsubscribe 取消订阅后不再收到事件
func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New()
	calls := 0
	handler := func(a *types.ProofArtifact) { calls++ }

	require.NoError(t, bus.Subscribe(event.EventTypeArtifactReady, handler))
	bus.Publish(event.EventTypeArtifactReady, &types.ProofArtifact{})
	require.NoError(t, bus.Unsubscribe(event.EventTypeArtifactReady, handler))
	bus.Publish(event.EventTypeArtifactReady, &types.ProofArtifact{})

	require.Equal(t, 1, calls)
}
