package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHookManager_EmitInSubscriptionOrder(t *testing.T) {
	h := NewHookManager(nil)

	var order []int
	h.On(NodeAdded, func(args ...any) { order = append(order, 1) })
	h.On(NodeAdded, func(args ...any) { order = append(order, 2) })
	h.On(NodeAdded, func(args ...any) { order = append(order, 3) })

	h.Emit(NodeAdded)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestHookManager_CleanupUnsubscribes(t *testing.T) {
	h := NewHookManager(nil)

	var calls int
	cleanup := h.On(NodeAdded, func(args ...any) { calls++ })
	h.Emit(NodeAdded)
	cleanup()
	h.Emit(NodeAdded)

	require.Equal(t, 1, calls)
}

func TestHookManager_PanicIsIsolated(t *testing.T) {
	h := NewHookManager(nil)

	var secondCalled bool
	h.On(NodeAdded, func(args ...any) { panic("boom") })
	h.On(NodeAdded, func(args ...any) { secondCalled = true })

	require.NotPanics(t, func() { h.Emit(NodeAdded) })
	require.True(t, secondCalled)
}

func TestHookManager_PanicIsLoggedWhenHandlerProvided(t *testing.T) {
	var loggedEvent EventName
	var loggedValue any
	h := NewHookManager(func(event EventName, recovered any) {
		loggedEvent = event
		loggedValue = recovered
	})
	h.On(NodeComputeError, func(args ...any) { panic("boom") })

	h.Emit(NodeComputeError)

	require.Equal(t, NodeComputeError, loggedEvent)
	require.Equal(t, "boom", loggedValue)
}

func TestHookManager_HasSubscribers(t *testing.T) {
	h := NewHookManager(nil)
	require.False(t, h.HasSubscribers(HealthCheck))

	cleanup := h.On(HealthCheck, func(args ...any) {})
	require.True(t, h.HasSubscribers(HealthCheck))

	cleanup()
	require.False(t, h.HasSubscribers(HealthCheck))
}
