package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

type recordingHandler struct {
	types []string
	seen  []Event
	err   error
}

func (h *recordingHandler) Handle(e Event) error {
	h.seen = append(h.seen, e)
	return h.err
}

func (h *recordingHandler) CanHandle(eventType string) bool {
	for _, t := range h.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func scheduledOrder() *entities.Order {
	start := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	return &entities.Order{
		ID:            "A",
		OrderQuantity: 150,
		Status:        entities.Scheduled,
		Version:       3,
		Schedule: &entities.Schedule{
			LineID:        "L1",
			PlanStartDate: start,
			PlanEndDate:   start.AddDate(0, 0, 1),
			DailyPlan: entities.DailyPlan{
				{Date: start, Quantity: 100},
				{Date: start.AddDate(0, 0, 1), Quantity: 50},
			},
		},
	}
}

func TestInMemoryEventStore_VersionsPerStream(t *testing.T) {
	store := NewInMemoryEventStore(nil)
	ctx := context.Background()

	order := scheduledOrder()
	require.NoError(t, store.Publish(ctx,
		NewOrderScheduledEvent(order),
		NewOrderUnscheduledEvent(order, "L1"),
		NewCascadeCommittedEvent("L1", []entities.OrderID{"A"}, nil, 1),
	))

	stream, err := store.ReadEvents("A", 0)
	require.NoError(t, err)
	require.Len(t, stream, 2)
	assert.Equal(t, 1, stream[0].Version())
	assert.Equal(t, 2, stream[1].Version())
	assert.Equal(t, OrderUnscheduledEvent, stream[1].Type())
	assert.NotEmpty(t, stream[0].ID())

	all, err := store.ReadAllEvents(2)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "line-L1", all[0].StreamID())
	assert.Equal(t, 3, store.Position())

	none, err := store.ReadEvents("A", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryEventStore_Subscribers(t *testing.T) {
	store := NewInMemoryEventStore(nil)
	handler := &recordingHandler{types: []string{OrderSplitEvent}, err: errors.New("boom")}
	require.NoError(t, store.Subscribe([]string{OrderSplitEvent}, handler))

	parent := &entities.Order{ID: "P", OrderQuantity: 10}
	children := []*entities.Order{{ID: "C1", OrderQuantity: 4}, {ID: "C2", OrderQuantity: 6}}
	require.NoError(t, store.Publish(context.Background(),
		NewOrderSplitEvent(parent, children...),
		NewOrderScheduledEvent(scheduledOrder()),
	))

	// a failing handler is logged, not propagated
	require.Len(t, handler.seen, 1)
	split := handler.seen[0].Data().(OrderSplit)
	assert.Equal(t, []entities.OrderID{"C1", "C2"}, split.Children)
	assert.Equal(t, []entities.Quantity{4, 6}, split.Quantity)

	require.NoError(t, store.Unsubscribe(handler))
	require.NoError(t, store.Publish(context.Background(), NewOrderSplitEvent(parent, children...)))
	assert.Len(t, handler.seen, 1)
}

func TestInMemoryEventStore_PublishHonoursContext(t *testing.T) {
	store := NewInMemoryEventStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Publish(ctx, NewOrderScheduledEvent(scheduledOrder()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Position())
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, ...Event) error { return f.err }

func TestMultiPublisher(t *testing.T) {
	store := NewInMemoryEventStore(nil)
	boom := errors.New("broker down")
	multi := MultiPublisher{store, nil, failingPublisher{err: boom}, NopPublisher{}}

	err := multi.Publish(context.Background(), NewOrderScheduledEvent(scheduledOrder()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.Position())
}

func TestEncodeMessage(t *testing.T) {
	event := NewOrderDisplacedEvent(scheduledOrder(), "N")

	msg, err := encodeMessage(event)
	require.NoError(t, err)
	assert.Equal(t, "A", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, OrderDisplacedEvent, string(msg.Headers[0].Value))

	var envelope struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		StreamID string `json:"stream_id"`
		Data     struct {
			OrderID     string `json:"order_id"`
			LineID      string `json:"line_id"`
			Quantity    int64  `json:"quantity"`
			Method      string `json:"method"`
			DisplacedBy string `json:"displaced_by"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, event.ID(), envelope.ID)
	assert.Equal(t, OrderDisplacedEvent, envelope.Type)
	assert.Equal(t, "A", envelope.Data.OrderID)
	assert.Equal(t, "L1", envelope.Data.LineID)
	assert.Equal(t, int64(150), envelope.Data.Quantity)
	assert.Equal(t, "flat", envelope.Data.Method)
	assert.Equal(t, "N", envelope.Data.DisplacedBy)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(" , ", "topic", nil)
	assert.Error(t, err)

	_, err = NewKafkaPublisher("localhost:9092", "", nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher("localhost:9092, localhost:9093", "lineplan.schedule", nil)
	require.NoError(t, err)
	assert.Equal(t, "lineplan.schedule", p.writer.Topic)
	require.NoError(t, p.Publish(context.Background()))
	require.NoError(t, p.Close())
}
