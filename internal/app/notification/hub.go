package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/peer"
)

// DefaultBuffer is the per-client send buffer.
const DefaultBuffer = 64

// Publisher receives every broadcast message, e.g. to mirror state onto a
// message bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Observer receives hub telemetry.
type Observer interface {
	ClientConnected(t peer.Transport)
	// ClientDisconnected is called for every client that leaves, dropped or not.
	ClientDisconnected(t peer.Transport)
	// ClientDropped is called when a full buffer drops a client.
	ClientDropped(t peer.Transport)
	MessageBroadcast(msgType string, recipients int)
}

type nopObserver struct{}

func (nopObserver) ClientConnected(peer.Transport)    {}
func (nopObserver) ClientDisconnected(peer.Transport) {}
func (nopObserver) ClientDropped(peer.Transport)      {}
func (nopObserver) MessageBroadcast(string, int)      {}

// Client is one subscriber. Messages are read from C until Done is closed.
type Client struct {
	session *peer.Session
	send    chan Message
	done    chan struct{}
	once    sync.Once
}

// ID returns the session ID.
func (c *Client) ID() string {
	return c.session.ID
}

// C returns the outbound message channel.
func (c *Client) C() <-chan Message {
	return c.send
}

// Done is closed when the hub drops or unregisters the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-client send buffer.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithPublisher adds a publisher that receives every broadcast.
func WithPublisher(p Publisher) Option {
	return func(h *Hub) { h.publishers = append(h.publishers, p) }
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(h *Hub) { h.obs = o }
}

// Hub fans store events out to connected clients. A client whose buffer is
// full is dropped; the mutation path never waits on a client.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	seq     uint64

	store      *state.Store
	buffer     int
	publishers []Publisher
	obs        Observer
	cancel     func()
}

// NewHub creates a hub subscribed to store.
func NewHub(store *state.Store, opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		store:   store,
		buffer:  DefaultBuffer,
		obs:     nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.cancel = store.Subscribe(h.handle)
	return h
}

func (h *Hub) handle(e state.Event) {
	msg, ok := FromEvent(e)
	if !ok {
		return
	}
	h.Broadcast(msg)
}

// Register adds a client. The first message it receives is a full snapshot.
func (h *Hub) Register(transport peer.Transport, remoteAddr string) *Client {
	c := &Client{
		session: peer.NewSession(uuid.New().String(), transport, remoteAddr),
		send:    make(chan Message, h.buffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Snapshot under the lock so no broadcast can slip in ahead of it.
	c.send <- h.stampLocked(Snapshot(h.store))
	c.session.Delivered()
	h.clients[c.ID()] = c

	h.obs.ClientConnected(transport)
	zlog.Info().Msgf("notification: client connected: id=%s transport=%s remote=%s clients=%d",
		c.ID(), transport, remoteAddr, len(h.clients))
	return c
}

// Unregister removes a client and closes its Done channel.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	c.close()
	h.obs.ClientDisconnected(c.session.Transport)
	zlog.Info().Msgf("notification: client disconnected: id=%s clients=%d", id, len(h.clients))
}

// Touch records inbound activity from a client.
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[id]; ok {
		c.session.Touch(time.Now())
	}
}

// Send delivers a message to one client only.
func (h *Hub) Send(id string, msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return false
	}
	return h.deliverLocked(c, h.stampLocked(msg))
}

// Broadcast sends msg to every client and publisher.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	msg = h.stampLocked(msg)
	delivered := 0
	for _, c := range h.clients {
		if h.deliverLocked(c, msg) {
			delivered++
		}
	}
	h.mu.Unlock()

	h.obs.MessageBroadcast(msg.Type, delivered)
	for _, p := range h.publishers {
		if err := p.Publish(context.Background(), msg); err != nil {
			zlog.Warn().Msgf("notification: publish failed: type=%s err=%v", msg.Type, err)
		}
	}
}

func (h *Hub) stampLocked(msg Message) Message {
	h.seq++
	msg.Seq = h.seq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

// deliverLocked never blocks. A full buffer drops the client.
func (h *Hub) deliverLocked(c *Client, msg Message) bool {
	select {
	case c.send <- msg:
		c.session.Delivered()
		return true
	default:
		delete(h.clients, c.ID())
		c.close()
		h.obs.ClientDropped(c.session.Transport)
		h.obs.ClientDisconnected(c.session.Transport)
		zlog.Warn().Msgf("notification: slow client dropped: id=%s transport=%s", c.ID(), c.session.Transport)
		return false
	}
}

// Sessions returns a copy of every live session.
func (h *Hub) Sessions() []peer.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	return lo.MapToSlice(h.clients, func(_ string, c *Client) peer.Session { return *c.session })
}

// ClientCount returns the number of live clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the store and drops every client.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
		h.obs.ClientDisconnected(c.session.Transport)
	}
}
