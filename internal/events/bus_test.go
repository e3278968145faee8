package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dukaan/internal/events"
)

type captureStore struct {
	events []events.Event
	err    error
}

func (c *captureStore) InsertEvent(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &captureStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, "ord-1", map[string]any{"orderId": "ord-1"})
	require.NoError(t, err)
	require.NotEqual(t, event.ID.String(), "00000000-0000-0000-0000-000000000000")
	require.Len(t, store.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
	require.JSONEq(t, `{"orderId":"ord-1"}`, string(event.Payload))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "ord-1", decoded["orderId"])
}

func TestEmitRejectsBadInput(t *testing.T) {
	bus := events.Bus{}

	_, err := bus.Emit(context.Background(), "  ", "ord-1", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "ord-1", json.RawMessage(`{"broken`))
	require.Error(t, err)
}

func TestEmitJoinsHandlerErrors(t *testing.T) {
	storeErr := errors.New("db down")
	notifyErr := errors.New("smtp down")
	bus := events.Bus{
		Store:     &captureStore{err: storeErr},
		Notifiers: []events.Notifier{&captureNotifier{err: notifyErr}},
	}

	event, err := bus.Emit(context.Background(), events.TopicPaymentFailed, "ord-2", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, storeErr)
	require.ErrorIs(t, err, notifyErr)
	require.Equal(t, events.TopicPaymentFailed, event.Topic)
	require.JSONEq(t, `{}`, string(event.Payload))
}
