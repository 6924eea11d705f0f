package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	broker     *fakeBroker
	closed     bool
	publishErr error
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	c.broker.declared = append(c.broker.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if c.closed {
		return amqp091.ErrClosed
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	c.broker.sent = append(c.broker.sent, published{exchange, key, msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }
func (c *fakeChannel) Close() error   { c.closed = true; return nil }

type fakeConn struct {
	broker *fakeBroker
	closed bool
}

func (c *fakeConn) Channel() (channel, error) {
	if c.closed {
		return nil, amqp091.ErrClosed
	}
	ch := &fakeChannel{broker: c.broker}
	c.broker.channels = append(c.broker.channels, ch)
	return ch, nil
}

func (c *fakeConn) IsClosed() bool { return c.closed }
func (c *fakeConn) Close() error   { c.closed = true; return nil }

type fakeBroker struct {
	dials    int
	dialErr  error
	conns    []*fakeConn
	channels []*fakeChannel
	declared []string
	sent     []published
}

func (b *fakeBroker) dial(string) (connection, error) {
	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	c := &fakeConn{broker: b}
	b.conns = append(b.conns, c)
	return c, nil
}

func newTestPublisher(t *testing.T) (*AMQPPublisher, *fakeBroker) {
	t.Helper()
	b := &fakeBroker{}
	p := &AMQPPublisher{url: "amqp://test", exchange: "scrapsail.pickups", dial: b.dial}
	require.NoError(t, p.connect())
	return p, b
}

func testEvent() PickupEvent {
	collector := uuid.New()
	return PickupEvent{
		PickupID:    uuid.New(),
		UserID:      uuid.New(),
		CollectorID: &collector,
		Action:      lifecycle.ActionComplete,
		Status:      lifecycle.StatusCompleted,
		Credits:     55,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestPublishWritesPersistentJSON(t *testing.T) {
	p, b := newTestPublisher(t)
	e := testEvent()

	require.NoError(t, p.Publish(context.Background(), e))

	assert.Equal(t, []string{"scrapsail.pickups:topic"}, b.declared)
	require.Len(t, b.sent, 1)
	sent := b.sent[0]
	assert.Equal(t, "scrapsail.pickups", sent.exchange)
	assert.Equal(t, "pickup.completed", sent.key)
	assert.Equal(t, uint8(amqp091.Persistent), sent.msg.DeliveryMode)
	assert.Equal(t, e.PickupID.String()+":completed", sent.msg.MessageId)

	var decoded PickupEvent
	require.NoError(t, json.Unmarshal(sent.msg.Body, &decoded))
	assert.Equal(t, e.PickupID, decoded.PickupID)
	assert.Equal(t, int64(55), decoded.Credits)
}

func TestPublishRedialsAfterConnectionLoss(t *testing.T) {
	p, b := newTestPublisher(t)
	require.NoError(t, p.Publish(context.Background(), testEvent()))

	// broker restart closes the connection and its channels
	b.conns[0].closed = true
	b.channels[0].closed = true

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, 2, b.dials)
	assert.Len(t, b.sent, 2)
	assert.Len(t, b.declared, 2, "exchange is redeclared on the new channel")
}

func TestPublishRetriesOnFreshChannel(t *testing.T) {
	p, b := newTestPublisher(t)
	b.channels[0].publishErr = errors.New("channel exception")

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, 1, b.dials)
	require.Len(t, b.channels, 2)
	assert.True(t, b.channels[0].closed)
	assert.Len(t, b.sent, 1)
}

func TestPublishFailsWhileBrokerIsDown(t *testing.T) {
	p, b := newTestPublisher(t)
	b.conns[0].closed = true
	b.dialErr = errors.New("connection refused")

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	b.dialErr = nil
	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Len(t, b.sent, 1)
}

func TestCloseClosesChannelAndConnection(t *testing.T) {
	p, b := newTestPublisher(t)
	require.NoError(t, p.Close())
	assert.True(t, b.channels[0].closed)
	assert.True(t, b.conns[0].closed)
}
