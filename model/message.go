package model

import (
	"math"

	"golang.org/x/exp/slices"
)

// ResponsePrefix is prepended to a request id to form its response id.
const ResponsePrefix = "R_"

// AnyDestination marks a message addressed to whichever host the sink
// predicate accepts rather than to a single address.
const AnyDestination = -1

// Message is a bundle carried through the network. The identity fields
// are fixed at creation; Hops, ReceivedAt and Copies are per-copy
// metadata that every holder mutates independently.
type Message struct {
	ID        string
	From      int
	To        int
	Size      int
	CreatedAt float64
	// TTL is the lifetime in simulated seconds. +Inf never expires.
	TTL float64

	// Hops lists the addresses that have held this copy, origin first.
	Hops       []int
	ReceivedAt float64

	ResponseSize int
	// RequestID is set on response messages and names the request answered.
	RequestID string

	// Copies is the remaining replication budget used by spray-and-wait.
	Copies int
}

// NewMessage builds a message created by host from at time now.
func NewMessage(id string, from, to, size int, now, ttl float64) *Message {
	if ttl <= 0 {
		ttl = math.Inf(1)
	}
	return &Message{
		ID:         id,
		From:       from,
		To:         to,
		Size:       size,
		CreatedAt:  now,
		TTL:        ttl,
		Hops:       []int{from},
		ReceivedAt: now,
	}
}

// RemainingTTL returns creationTime + ttl - now.
func (m *Message) RemainingTTL(now float64) float64 {
	return m.CreatedAt + m.TTL - now
}

// Expired reports whether the remaining TTL is zero or less.
func (m *Message) Expired(now float64) bool {
	return m.RemainingTTL(now) <= 0
}

// HopCount is the number of hops travelled so far.
func (m *Message) HopCount() int {
	return len(m.Hops) - 1
}

// Visited reports whether addr appears on the hop list.
func (m *Message) Visited(addr int) bool {
	return slices.Contains(m.Hops, addr)
}

// AddHop appends addr to the hop list.
func (m *Message) AddHop(addr int) {
	m.Hops = append(m.Hops, addr)
}

// IsResponse reports whether the message answers another message.
func (m *Message) IsResponse() bool {
	return m.RequestID != ""
}

// Replicate returns an independent copy whose hop list does not alias m's.
func (m *Message) Replicate() *Message {
	c := *m
	c.Hops = slices.Clone(m.Hops)
	return &c
}

// Response builds the response to m as created by the host at addr.
func (m *Message) Response(addr int, now float64) *Message {
	r := NewMessage(ResponsePrefix+m.ID, addr, m.From, m.ResponseSize, now, m.TTL)
	r.RequestID = m.ID
	return r
}
