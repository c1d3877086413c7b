package events_test

import (
	"testing"

	"github.com/glizzus/talkward/internal/events"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := events.NewBus()

	var order []int
	bus.SubscribeFollow(func(events.FollowEvent) { order = append(order, 1) })
	bus.SubscribeFollow(func(events.FollowEvent) { order = append(order, 2) })

	bus.PublishFollow(events.FollowEvent{GuildID: "g1"})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected subscribers to run in order [1 2], got %v", order)
	}
}

func TestBusPayloadsAreIndependent(t *testing.T) {
	bus := events.NewBus()

	var gotRelease events.ReleaseEvent
	bus.SubscribeRelease(func(e events.ReleaseEvent) { gotRelease = e })

	// A follow publish must not reach release subscribers.
	bus.PublishFollow(events.FollowEvent{GuildID: "g1"})
	if gotRelease.GuildID != "" {
		t.Errorf("release subscriber received a follow event: %+v", gotRelease)
	}

	bus.PublishRelease(events.ReleaseEvent{GuildID: "g2", Reason: "disconnect"})
	if gotRelease.GuildID != "g2" || gotRelease.Reason != "disconnect" {
		t.Errorf("unexpected release payload: %+v", gotRelease)
	}
}

func TestBusNoSubscribersIsNoop(t *testing.T) {
	bus := events.NewBus()
	bus.PublishMessageDelivered(events.MessageDeliveredEvent{GuildID: "g1", Characters: 5})
}
