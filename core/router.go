package core

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/dtn-simulator/internal/logging"
	"github.com/signalsfoundry/dtn-simulator/model"
)

const (
	// DefaultTTLCheckInterval is the cadence of the expired-message sweep.
	DefaultTTLCheckInterval = 60.0
	// DefaultSamplingInterval is the neighbor-list refresh cadence.
	DefaultSamplingInterval = 600.0
)

// QueueMode orders messages for flooding passes.
type QueueMode int

const (
	// QueueFIFO offers the oldest received message first.
	QueueFIFO QueueMode = iota
	// QueueRandom offers messages in a freshly shuffled order.
	QueueRandom
)

// SinkFunc decides whether h is a valid final recipient for m.
type SinkFunc func(m *model.Message, h *Host) bool

// DestinationSink accepts only the host whose address is the destination.
func DestinationSink(m *model.Message, h *Host) bool {
	return m.To == h.Address
}

// RoleSink accepts the destination host and, for requests, any host with
// the given role.
func RoleSink(role model.Role) SinkFunc {
	return func(m *model.Message, h *Host) bool {
		if m.To == h.Address {
			return true
		}
		return !m.IsResponse() && h.Role == role
	}
}

// NeighborFilter supplies the hosts a host may exchange with at a
// sampled time. ok is false when the filter has no opinion.
type NeighborFilter interface {
	Neighbors(host int, sampleTime float64) (allowed []int, ok bool)
}

// RouterConfig carries the immutable settings of a router.
type RouterConfig struct {
	BufferSize       int
	DeleteDelivered  bool
	TTLCheckInterval float64
	// MessageTTL is the lifetime of response messages; 0 inherits the request's.
	MessageTTL float64
	QueueMode  QueueMode
	Sink       SinkFunc

	// Energy enables energy accounting when non-nil.
	Energy *EnergyConfig

	NeighborFilter   NeighborFilter
	SamplingInterval float64
}

// RouterOption customises router construction.
type RouterOption func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l logging.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRandom sets the random source used for queue shuffling and the
// energy draw.
func WithRandom(rng RandomSource) RouterOption {
	return func(r *Router) { r.rng = rng }
}

// WithMessageListeners registers lifecycle observers.
func WithMessageListeners(ls ...MessageListener) RouterOption {
	return func(r *Router) { r.listeners = append(r.listeners, ls...) }
}

// Router is the per-host transfer engine: buffer admission, TTL sweep,
// transfer bookkeeping and energy accounting. The forwarding decision
// itself is delegated to a ForwardingPolicy.
type Router struct {
	host   *Host
	cfg    RouterConfig
	clock  Clock
	policy ForwardingPolicy
	rng    RandomSource
	log    logging.Logger

	buffer    *MessageBuffer
	energy    *Energy
	listeners []MessageListener

	incoming  map[string]*model.Message
	delivered map[string]float64
	sending   []*Connection

	lastTTLCheck float64

	allowed     map[int]struct{}
	filtered    bool
	nextSample  float64
	failAt      float64
	failPending bool
	failed      bool
}

// NewRouter builds a router. The router is inert until bound to a host
// with Host.SetRouter.
func NewRouter(cfg RouterConfig, policy ForwardingPolicy, clock Clock, opts ...RouterOption) (*Router, error) {
	if policy == nil {
		return nil, fmt.Errorf("NewRouter: nil forwarding policy")
	}
	if clock == nil {
		return nil, fmt.Errorf("NewRouter: nil clock")
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("NewRouter: buffer size must be positive, got %d", cfg.BufferSize)
	}
	if cfg.TTLCheckInterval <= 0 {
		cfg.TTLCheckInterval = DefaultTTLCheckInterval
	}
	if cfg.SamplingInterval <= 0 {
		cfg.SamplingInterval = DefaultSamplingInterval
	}
	if cfg.Sink == nil {
		cfg.Sink = DestinationSink
	}

	r := &Router{
		cfg:       cfg,
		clock:     clock,
		policy:    policy,
		log:       logging.Noop(),
		buffer:    NewMessageBuffer(cfg.BufferSize),
		incoming:  make(map[string]*model.Message),
		delivered: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg.Energy != nil {
		e, err := NewEnergy(*cfg.Energy, r.rng)
		if err != nil {
			return nil, fmt.Errorf("NewRouter: %w", err)
		}
		r.energy = e
	}
	return r, nil
}

func (r *Router) attach(h *Host) {
	r.host = h
	r.log = r.log.With(logging.String("host", h.Name))
	if r.energy != nil {
		r.energy.OnChange(func(level float64) {
			if level <= 0 {
				h.SetRadioRange(0)
			}
		})
	}
	r.policy.Attach(r)
}

// Host returns the host this router serves.
func (r *Router) Host() *Host { return r.host }

// Policy returns the forwarding policy.
func (r *Router) Policy() ForwardingPolicy { return r.policy }

// Buffer returns the message buffer.
func (r *Router) Buffer() *MessageBuffer { return r.buffer }

// Energy returns the energy model, or nil when unconstrained.
func (r *Router) Energy() *Energy { return r.energy }

// Config returns the router settings.
func (r *Router) Config() RouterConfig { return r.cfg }

// Now returns the current simulation time.
func (r *Router) Now() float64 { return r.clock.Seconds() }

// Random returns the router's random source, which may be nil.
func (r *Router) Random() RandomSource { return r.rng }

// Logger returns the router's logger.
func (r *Router) Logger() logging.Logger { return r.log }

// AddListener registers a lifecycle observer.
func (r *Router) AddListener(l MessageListener) {
	r.listeners = append(r.listeners, l)
}

// ScheduleFailure makes the host lose all energy at time at.
func (r *Router) ScheduleFailure(at float64) {
	r.failAt = at
	r.failPending = true
}

// Connections returns the host's current connections.
func (r *Router) Connections() []*Connection {
	if r.host == nil {
		return nil
	}
	return r.host.Connections()
}

// Messages returns the buffered messages in buffer order.
func (r *Router) Messages() []*model.Message { return r.buffer.Messages() }

// HasMessage reports whether id is buffered.
func (r *Router) HasMessage(id string) bool { return r.buffer.Has(id) }

// Message returns the buffered message id, or nil.
func (r *Router) Message(id string) *model.Message { return r.buffer.Get(id) }

// IsDelivered reports whether id was delivered here as final recipient.
func (r *Router) IsDelivered(id string) bool {
	_, ok := r.delivered[id]
	return ok
}

// IsValidSink applies the configured sink predicate.
func (r *Router) IsValidSink(m *model.Message, h *Host) bool {
	return r.cfg.Sink(m, h)
}

// IsSending reports whether a transfer of id from this host is in flight.
func (r *Router) IsSending(id string) bool {
	for _, c := range r.Connections() {
		if m := c.Message(); m != nil && c.Sender() == r.host && m.ID == id {
			return true
		}
	}
	return false
}

// SendingCount returns the number of connections in the sending state.
func (r *Router) SendingCount() int { return len(r.sending) }

// IsReceiving reports whether a transfer into this host is in flight.
func (r *Router) IsReceiving() bool { return len(r.incoming) > 0 }

// IsTransferring reports whether any connection is sending or not ready.
func (r *Router) IsTransferring() bool {
	if len(r.sending) > 0 {
		return true
	}
	for _, c := range r.Connections() {
		if !c.IsReadyForTransfer() {
			return true
		}
	}
	return false
}

// CanStartTransfer reports whether there is anything to send, anyone to
// send it to and energy to send with.
func (r *Router) CanStartTransfer() bool {
	if r.buffer.Len() == 0 || len(r.Connections()) == 0 {
		return false
	}
	return !r.outOfEnergy()
}

// Permitted applies the neighbor allow-list. Only survivor pairs are
// restricted.
func (r *Router) Permitted(other *Host) bool {
	if !r.filtered || r.host.Role != model.RoleSurvivor || other.Role != model.RoleSurvivor {
		return true
	}
	_, ok := r.allowed[other.Address]
	return ok
}

// CreateMessage buffers a message originating at this host.
func (r *Router) CreateMessage(m *model.Message) bool {
	m.ReceivedAt = r.Now()
	if r.buffer.Has(m.ID) {
		return false
	}
	if !r.buffer.MakeRoom(m.Size, r.IsSending, r.dropped) {
		r.log.Debug(context.Background(), "no room for new message",
			logging.String("message", m.ID), logging.Int("size", m.Size))
		return false
	}
	r.policy.MessageCreated(m)
	if err := r.buffer.Add(m); err != nil {
		return false
	}
	for _, l := range r.listeners {
		l.NewMessage(m)
	}
	return true
}

// DeleteMessage removes id from the buffer and reports it as dropped or
// removed.
func (r *Router) DeleteMessage(id string, drop bool) bool {
	m := r.buffer.Remove(id)
	if m == nil {
		return false
	}
	for _, l := range r.listeners {
		l.MessageDeleted(m, r.host, drop)
	}
	return true
}

// Receive is called by a connection when from offers m. It performs the
// admission checks and, on acceptance, records m as incoming.
func (r *Router) Receive(m *model.Message, from *Host) ReceiveResult {
	now := r.Now()
	if r.outOfEnergy() {
		return Denied
	}
	if r.IsTransferring() {
		return Busy
	}
	if r.buffer.Has(m.ID) || r.IsDelivered(m.ID) {
		return Duplicate
	}
	if m.Expired(now) && !r.IsValidSink(m, r.host) {
		return ExpiredRejected
	}
	if !r.buffer.MakeRoom(m.Size, r.IsSending, r.dropped) {
		return NoSpace
	}
	m.AddHop(r.host.Address)
	r.incoming[m.ID] = m
	return Accepted
}

// TransferCompleted moves an incoming message into the buffer, or
// delivers it when this host is a valid sink.
func (r *Router) TransferCompleted(id string, from *Host) error {
	m, ok := r.incoming[id]
	if !ok {
		return fmt.Errorf("%w: %q from %s", ErrNoIncoming, id, from)
	}
	delete(r.incoming, id)

	now := r.Now()
	m.ReceivedAt = now
	final := r.IsValidSink(m, r.host)
	first := final && !r.IsDelivered(id)

	r.policy.MessageReceived(m, from)

	switch {
	case final:
		if first {
			r.delivered[id] = now
		}
	case !r.buffer.Has(id):
		if !r.buffer.TryAdmit(m, r.IsSending, r.dropped) {
			for _, l := range r.listeners {
				l.MessageDeleted(m, r.host, true)
			}
		}
	}

	for _, l := range r.listeners {
		l.MessageTransferred(m, from, r.host, first)
	}

	if first && m.ResponseSize > 0 && !m.IsResponse() {
		res := m.Response(r.host.Address, now)
		if r.cfg.MessageTTL > 0 {
			res.TTL = r.cfg.MessageTTL
		}
		r.CreateMessage(res)
	}
	return nil
}

// TransferAborted discards an incoming message whose transfer failed.
func (r *Router) TransferAborted(id string, from *Host, bytesRemaining int) {
	m, ok := r.incoming[id]
	if !ok {
		return
	}
	delete(r.incoming, id)
	r.log.Debug(context.Background(), "incoming transfer aborted",
		logging.String("message", id),
		logging.String("from", from.Name),
		logging.Int("bytes_remaining", bytesRemaining))
	for _, l := range r.listeners {
		l.MessageTransferAborted(m, from, r.host)
	}
}

// StartTransfer offers m over c.
func (r *Router) StartTransfer(m *model.Message, c *Connection) ReceiveResult {
	if !c.IsReadyForTransfer() {
		return Busy
	}
	other := c.OtherNode(r.host)
	if !r.Permitted(other) {
		return Denied
	}
	res := c.StartTransfer(r.host, m)
	switch res {
	case Accepted:
		r.sending = append(r.sending, c)
		for _, l := range r.listeners {
			l.MessageTransferStarted(m, r.host, other)
		}
		r.log.Debug(context.Background(), "transfer started",
			logging.String("message", m.ID), logging.String("to", other.Name))
	case Duplicate:
		if r.cfg.DeleteDelivered {
			r.DeleteMessage(m.ID, false)
		}
	}
	return res
}

// ChangedConnection forwards a connection transition to the policy.
func (r *Router) ChangedConnection(c *Connection) {
	r.policy.ConnectionChanged(c)
}

// Update runs one tick: finish or abort transfers, sweep expired
// messages, account energy, then let the policy pick a transfer.
func (r *Router) Update() {
	now := r.Now()

	for i := 0; i < len(r.sending); {
		c := r.sending[i]
		switch {
		case c.IsMessageTransferred():
			if c.Message() != nil {
				r.policy.TransferDone(c)
				c.FinalizeTransfer()
			}
		case !c.IsUp():
			if c.Message() != nil {
				r.policy.TransferAborted(c)
				c.AbortTransfer()
			}
		default:
			i++
			continue
		}
		if r.buffer.Free() < 0 {
			r.buffer.MakeRoom(0, r.IsSending, r.dropped)
		}
		r.sending = append(r.sending[:i], r.sending[i+1:]...)
	}

	if now-r.lastTTLCheck >= r.cfg.TTLCheckInterval && len(r.sending) == 0 {
		r.dropExpiredMessages(now)
		r.lastTTLCheck = now
	}

	r.updateEnergy(now)
	r.updateNeighborList(now)
	r.policy.Tick(now)

	if r.IsTransferring() || !r.CanStartTransfer() {
		return
	}
	r.policy.SelectTransfers()
}

// SortByQueueMode orders msgs in place according to the queue mode.
func (r *Router) SortByQueueMode(msgs []*model.Message) []*model.Message {
	switch {
	case r.cfg.QueueMode == QueueRandom && r.rng != nil:
		for i := len(msgs) - 1; i > 0; i-- {
			j := int(math.Floor(r.rng.RandU01() * float64(i+1)))
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	default:
		slices.SortStableFunc(msgs, func(a, b *model.Message) int {
			switch {
			case a.ReceivedAt < b.ReceivedAt:
				return -1
			case a.ReceivedAt > b.ReceivedAt:
				return 1
			}
			return 0
		})
	}
	return msgs
}

// SortTuplesByQueueMode orders tuples by their messages' queue order.
func (r *Router) SortTuplesByQueueMode(ts []Tuple) []Tuple {
	msgs := make([]*model.Message, 0, len(ts))
	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		if _, ok := seen[t.Message.ID]; !ok {
			seen[t.Message.ID] = struct{}{}
			msgs = append(msgs, t.Message)
		}
	}
	r.SortByQueueMode(msgs)
	rank := make(map[string]int, len(msgs))
	for i, m := range msgs {
		rank[m.ID] = i
	}
	slices.SortStableFunc(ts, func(a, b Tuple) int {
		return rank[a.Message.ID] - rank[b.Message.ID]
	})
	return ts
}

// TryAllMessages offers msgs over c in order until one is accepted or
// the receiver asks to try later.
func (r *Router) TryAllMessages(c *Connection, msgs []*model.Message) *model.Message {
	for _, m := range msgs {
		res := r.StartTransfer(m, c)
		if res == Accepted {
			return m
		}
		if res.TryLater() {
			return nil
		}
	}
	return nil
}

// TryMessagesToConnections offers msgs on each connection in turn.
func (r *Router) TryMessagesToConnections(msgs []*model.Message, conns []*Connection) *Connection {
	for _, c := range conns {
		if r.TryAllMessages(c, msgs) != nil {
			return c
		}
	}
	return nil
}

// TryAllMessagesToAllConnections floods the queue-ordered buffer.
func (r *Router) TryAllMessagesToAllConnections() *Connection {
	conns := r.Connections()
	if len(conns) == 0 || r.buffer.Len() == 0 {
		return nil
	}
	msgs := r.SortByQueueMode(r.Messages())
	return r.TryMessagesToConnections(msgs, conns)
}

// TryMessagesForConnected offers each tuple in order and returns the
// first accepted one.
func (r *Router) TryMessagesForConnected(ts []Tuple) *Tuple {
	for i := range ts {
		if r.StartTransfer(ts[i].Message, ts[i].Connection) == Accepted {
			return &ts[i]
		}
	}
	return nil
}

// MessagesForConnected lists the buffered messages whose sink is a
// current neighbor.
func (r *Router) MessagesForConnected() []Tuple {
	var ts []Tuple
	for _, m := range r.Messages() {
		for _, c := range r.Connections() {
			if r.IsValidSink(m, c.OtherNode(r.host)) {
				ts = append(ts, Tuple{Message: m, Connection: c})
			}
		}
	}
	return ts
}

// ExchangeDeliverableMessages tries messages deliverable to a neighbor,
// then asks each neighbor for messages deliverable to this host.
func (r *Router) ExchangeDeliverableMessages() *Connection {
	conns := r.Connections()
	if len(conns) == 0 {
		return nil
	}
	if t := r.TryMessagesForConnected(r.SortTuplesByQueueMode(r.MessagesForConnected())); t != nil {
		return t.Connection
	}
	for _, c := range conns {
		other := c.OtherNode(r.host).Router()
		if other != nil && other.RequestDeliverableMessages(c) {
			return c
		}
	}
	return nil
}

// RequestDeliverableMessages is called by a neighbor: it starts a
// transfer over c of the first buffered message the neighbor is a valid
// sink for.
func (r *Router) RequestDeliverableMessages(c *Connection) bool {
	if r.IsTransferring() || r.outOfEnergy() {
		return false
	}
	other := c.OtherNode(r.host)
	for _, m := range r.Messages() {
		if !r.IsValidSink(m, other) {
			continue
		}
		if r.StartTransfer(m, c) == Accepted {
			return true
		}
	}
	return false
}

func (r *Router) dropped(m *model.Message) {
	for _, l := range r.listeners {
		l.MessageDeleted(m, r.host, true)
	}
}

func (r *Router) dropExpiredMessages(now float64) {
	keep := func(m *model.Message) bool { return r.IsValidSink(m, r.host) }
	for _, m := range r.buffer.EvictExpired(now, keep) {
		r.dropped(m)
	}
}

func (r *Router) outOfEnergy() bool {
	return r.failed || (r.energy != nil && r.energy.Depleted())
}

func (r *Router) updateEnergy(now float64) {
	if r.failPending && now >= r.failAt {
		r.failPending = false
		r.failed = true
		if r.energy != nil {
			r.energy.Deplete()
		} else {
			r.host.SetRadioRange(0)
		}
		r.log.Info(context.Background(), "host failed", logging.Float("time", now))
	}
	if r.failed {
		r.host.SetRadioRange(0)
		return
	}
	if r.energy == nil || r.host.Role != model.RoleSurvivor {
		return
	}
	if r.energy.Depleted() {
		r.host.SetRadioRange(0)
		return
	}
	r.energy.Update(now, len(r.sending) > 0 || r.IsReceiving())
}

func (r *Router) updateNeighborList(now float64) {
	if r.cfg.NeighborFilter == nil || now < r.nextSample {
		return
	}
	sample := math.Floor(now/r.cfg.SamplingInterval) * r.cfg.SamplingInterval
	r.nextSample = sample + r.cfg.SamplingInterval
	allowed, ok := r.cfg.NeighborFilter.Neighbors(r.host.Address, sample)
	r.filtered = ok
	r.allowed = make(map[int]struct{}, len(allowed))
	for _, a := range allowed {
		r.allowed[a] = struct{}{}
	}
}
