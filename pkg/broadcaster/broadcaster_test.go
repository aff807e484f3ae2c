package broadcaster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcast_DeliversToAllSubscribers(t *testing.T) {
	b := New(nil)
	var gotA, gotB any
	b.Subscribe("pipeline_progress", "a", SubscriberFunc(func(m any) error { gotA = m; return nil }))
	b.Subscribe("pipeline_progress", "b", SubscriberFunc(func(m any) error { gotB = m; return nil }))

	b.Broadcast("pipeline_progress", "hello")

	assert.Equal(t, "hello", gotA)
	assert.Equal(t, "hello", gotB)
}

func TestBroadcast_RemovesFailingSubscriber(t *testing.T) {
	b := New(nil)
	calls := 0
	b.Subscribe("ch", "failing", SubscriberFunc(func(any) error {
		calls++
		return errors.New("boom")
	}))

	b.Broadcast("ch", 1)
	b.Broadcast("ch", 2)

	assert.Equal(t, 1, calls)
}

func TestBroadcast_NoSubscribersIsNoop(t *testing.T) {
	b := New(nil)
	assert.NotPanics(t, func() { b.Broadcast("empty", "x") })
}
