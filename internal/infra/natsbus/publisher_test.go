package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/openfm/internal/app/notification"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/infra/config"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs   []published
	err    error
	closed bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func TestPublisher_Publish(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, config.NATSConfig{SubjectPrefix: "openfm.events", NodeID: "node-1"})
	p.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	st := state.New().State()
	require.NoError(t, p.Publish(context.Background(), notification.StateMessage(st, nil)))
	require.NoError(t, p.Publish(context.Background(), notification.Message{Type: notification.TypeCrossfade, Crossfade: &state.Crossfade{}}))

	require.Len(t, nc.msgs, 1, "crossfade ticks are not mirrored by default")
	assert.Equal(t, "openfm.events.state", nc.msgs[0].subject)

	env, err := Decode(nc.msgs[0].data)
	require.NoError(t, err)
	assert.Equal(t, "state", env.EventType)
	assert.Equal(t, "node-1", env.NodeID)
	assert.NotEmpty(t, env.MessageID)
	assert.True(t, env.Timestamp.Equal(time.Unix(1700000000, 0)))
	require.NotNil(t, env.Payload.State)
	assert.Equal(t, st.CurrentMood, env.Payload.State.CurrentMood)
	require.NotNil(t, env.Payload.Tokens)

	p.Close()
	assert.True(t, nc.closed)
}

func TestPublisher_Types(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, config.NATSConfig{SubjectPrefix: "fm"}, WithTypes(notification.TypeCrossfade))
	assert.NotEmpty(t, p.nodeID, "node id is generated")

	require.NoError(t, p.Publish(context.Background(), notification.Message{Type: notification.TypeState}))
	require.NoError(t, p.Publish(context.Background(), notification.Message{Type: notification.TypeCrossfade, Crossfade: &state.Crossfade{Step: 3, Steps: 20}}))

	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "fm.crossfade", nc.msgs[0].subject)
}

func TestPublisher_PublishError(t *testing.T) {
	nc := &fakeConn{err: errors.New("nats: connection closed")}
	p := newPublisher(nc, config.NATSConfig{SubjectPrefix: "fm"})

	err := p.Publish(context.Background(), notification.Message{Type: notification.TypeSettings})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "settings")
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.NATSConfig{URL: "nats://127.0.0.1:1", SubjectPrefix: "fm"})
	assert.Error(t, err)
}
