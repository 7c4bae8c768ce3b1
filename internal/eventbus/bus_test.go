package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_DispatchInSubscriptionOrder(t *testing.T) {
	bus := New()
	var calls []string

	bus.Subscribe(TopicSessionStart, func(payload any) { calls = append(calls, "first:"+payload.(string)) })
	bus.Subscribe(TopicSessionStart, func(payload any) { calls = append(calls, "second:"+payload.(string)) })
	bus.Subscribe(TopicEventRecorded, func(payload any) { calls = append(calls, "other") })

	bus.Dispatch(TopicSessionStart, "s-1")

	require.Equal(t, []string{"first:s-1", "second:s-1"}, calls)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	var calls []string

	first := bus.Subscribe(TopicSessionStart, func(any) { calls = append(calls, "first") })
	bus.Subscribe(TopicSessionStart, func(any) { calls = append(calls, "second") })
	require.Equal(t, 2, bus.SubscriberCount(TopicSessionStart))

	bus.Unsubscribe(first)
	bus.Unsubscribe(first) // second removal is a no-op
	bus.Dispatch(TopicSessionStart, nil)

	require.Equal(t, []string{"second"}, calls)
	require.Equal(t, 1, bus.SubscriberCount(TopicSessionStart))
}

func TestBus_DispatchWithoutSubscribers(t *testing.T) {
	bus := New()
	require.NotPanics(t, func() { bus.Dispatch(TopicSessionExpired, "s-1") })
}

func TestBus_HandlerPanicPropagates(t *testing.T) {
	bus := New()
	bus.Subscribe(TopicSessionStart, func(any) { panic("plugin bug") })

	require.PanicsWithValue(t, "plugin bug", func() { bus.Dispatch(TopicSessionStart, nil) })
}

func TestBus_UnsubscribeDuringDispatch(t *testing.T) {
	bus := New()
	var calls int
	var sub Subscription
	sub = bus.Subscribe(TopicSessionStart, func(any) {
		calls++
		bus.Unsubscribe(sub)
	})
	bus.Subscribe(TopicSessionStart, func(any) { calls++ })

	bus.Dispatch(TopicSessionStart, nil)
	bus.Dispatch(TopicSessionStart, nil)

	require.Equal(t, 3, calls)
}
