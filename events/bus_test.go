package events_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/profile"
)

func newBus() *events.Bus {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return events.NewBus(l)
}

func TestDispatchInRegistrationOrder(t *testing.T) {
	bus := newBus()
	var order []string

	bus.Subscribe("store", func(events.Event) { order = append(order, "store") })
	bus.Subscribe("broadcast", func(events.Event) { order = append(order, "broadcast") })
	bus.Subscribe("audit", func(events.Event) { order = append(order, "audit") })

	bus.Publish(events.ConnectionStatus{Address: "AABBCCDDEEFF", Status: events.StatusConnecting})

	assert.Equal(t, []string{"store", "broadcast", "audit"}, order)
}

func TestPanickingSubscriberIsolated(t *testing.T) {
	bus := newBus()
	var delivered []string

	bus.Subscribe("first", func(events.Event) { delivered = append(delivered, "first") })
	bus.Subscribe("faulty", func(events.Event) { panic("subscriber bug") })
	bus.Subscribe("last", func(events.Event) { delivered = append(delivered, "last") })

	require.NotPanics(t, func() {
		bus.Publish(events.ButtonPress{Address: "AABBCCDDEEFF", Pressed: true, At: time.Now()})
	})

	// The panic in the middle subscriber must not stop the tail.
	assert.Equal(t, []string{"first", "last"}, delivered)
}

func TestResubscribeKeepsPosition(t *testing.T) {
	bus := newBus()
	var order []string

	bus.Subscribe("a", func(events.Event) { order = append(order, "a1") })
	bus.Subscribe("b", func(events.Event) { order = append(order, "b") })
	bus.Subscribe("a", func(events.Event) { order = append(order, "a2") })

	bus.Publish(events.SensorUpdate{Address: "AABBCCDDEEFF"})

	assert.Equal(t, []string{"a2", "b"}, order)
}

func TestUnsubscribe(t *testing.T) {
	bus := newBus()
	calls := 0

	bus.Subscribe("gone", func(events.Event) { calls++ })
	require.Equal(t, 1, bus.SubscriberCount())

	assert.True(t, bus.Unsubscribe("gone"))
	assert.False(t, bus.Unsubscribe("gone"))

	bus.Publish(events.ConnectionError{Address: "AABBCCDDEEFF", Err: "boom"})
	assert.Zero(t, calls)
}

func TestEventTopics(t *testing.T) {
	tests := []struct {
		ev    events.Event
		topic string
	}{
		{events.ConnectionStatus{}, "connection-status"},
		{events.ConnectionError{}, "connection-error"},
		{events.BloodPressure{Reading: profile.BloodPressureReading{Systolic: 120}}, "bp-data-received"},
		{events.SensorUpdate{}, "sensor-update"},
		{events.ButtonPress{}, "button-press"},
		{events.ActivityUpdated{}, "activityUpdated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.topic, tt.ev.Topic())
	}
}
