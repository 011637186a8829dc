package messaging

import (
	"encoding/json"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) PublishGlobal(evt domain.Event, excludeConnID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return 3
}

func newTestConsumer(instanceID string) (*TaskEventConsumer, *recordingPublisher) {
	pub := &recordingPublisher{}
	return &TaskEventConsumer{hub: pub, instanceID: instanceID}, pub
}

func TestHandleDelivery_ForwardsTaskChange(t *testing.T) {
	c, pub := newTestConsumer("instance-a")

	body, err := json.Marshal(domain.TaskChange{ActorID: "bob", Payload: json.RawMessage(`{"task_id":"t1","status":"done"}`)})
	require.NoError(t, err)

	forwarded := c.handleDelivery(amqp.Delivery{AppId: "instance-b", Body: body})

	assert.True(t, forwarded)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventTaskChanged, pub.events[0].Type)
	assert.Empty(t, pub.events[0].ChannelID)

	change, ok := pub.events[0].Data.(domain.TaskChange)
	require.True(t, ok)
	assert.Equal(t, "bob", change.ActorID)
	assert.JSONEq(t, `{"task_id":"t1","status":"done"}`, string(change.Payload))
}

func TestHandleDelivery_SkipsOwnMessages(t *testing.T) {
	c, pub := newTestConsumer("instance-a")

	forwarded := c.handleDelivery(amqp.Delivery{AppId: "instance-a", Body: []byte(`{"payload":{"id":1}}`)})

	assert.False(t, forwarded)
	assert.Empty(t, pub.events)
}

func TestHandleDelivery_BarePayload(t *testing.T) {
	c, pub := newTestConsumer("instance-a")

	forwarded := c.handleDelivery(amqp.Delivery{Body: []byte(`{"task_id":"t9"}`)})

	assert.True(t, forwarded)
	require.Len(t, pub.events, 1)
	change := pub.events[0].Data.(domain.TaskChange)
	assert.Empty(t, change.ActorID)
	assert.JSONEq(t, `{"task_id":"t9"}`, string(change.Payload))
}

func TestHandleDelivery_MalformedBody(t *testing.T) {
	c, pub := newTestConsumer("instance-a")

	forwarded := c.handleDelivery(amqp.Delivery{AppId: "external", Body: []byte("{not json")})

	assert.False(t, forwarded)
	assert.Empty(t, pub.events)
}
