package core

import "github.com/signalsfoundry/dtn-simulator/model"

// ForwardingPolicy decides which message goes over which connection.
// Each router owns one policy instance; the router calls the hooks from
// its own Update and from transfer completions.
type ForwardingPolicy interface {
	// Name is the configuration name of the policy.
	Name() string
	// Attach binds the policy to its router once the host is known.
	Attach(r *Router)
	// MessageCreated runs before a locally created message is buffered.
	MessageCreated(m *model.Message)
	// MessageReceived runs on the receiving side when a transfer completes,
	// before the message is buffered or delivered.
	MessageReceived(m *model.Message, from *Host)
	// ConnectionChanged runs on both endpoints on up and down transitions.
	ConnectionChanged(c *Connection)
	// TransferDone runs on the sender before a completed transfer is finalized.
	TransferDone(c *Connection)
	// TransferAborted runs on the sender before a transfer is aborted.
	TransferAborted(c *Connection)
	// Tick runs every update after energy accounting, before any gating.
	Tick(now float64)
	// SelectTransfers starts at most one transfer and returns its
	// connection, or nil.
	SelectTransfers() *Connection
}

// PolicyBase provides no-op hooks and the router binding. Policies embed
// it and override what they need.
type PolicyBase struct {
	router *Router
}

// Attach stores the router.
func (p *PolicyBase) Attach(r *Router) { p.router = r }

// Router returns the bound router.
func (p *PolicyBase) Router() *Router { return p.router }

// Host returns the bound router's host.
func (p *PolicyBase) Host() *Host { return p.router.Host() }

func (p *PolicyBase) MessageCreated(*model.Message)         {}
func (p *PolicyBase) MessageReceived(*model.Message, *Host) {}
func (p *PolicyBase) ConnectionChanged(*Connection)         {}
func (p *PolicyBase) TransferDone(*Connection)              {}
func (p *PolicyBase) TransferAborted(*Connection)           {}
func (p *PolicyBase) Tick(float64)                          {}

// Tuple pairs a message with the connection it should be offered on.
type Tuple struct {
	Message    *model.Message
	Connection *Connection
}
