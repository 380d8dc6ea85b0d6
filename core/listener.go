package core

import "github.com/signalsfoundry/dtn-simulator/model"

// MessageListener observes message lifecycle events. Implementations
// must not mutate router state.
type MessageListener interface {
	NewMessage(m *model.Message)
	MessageTransferStarted(m *model.Message, from, to *Host)
	MessageDeleted(m *model.Message, where *Host, dropped bool)
	MessageTransferAborted(m *model.Message, from, to *Host)
	MessageTransferred(m *model.Message, from, to *Host, firstDelivery bool)
}

// ConnectionListener observes connection transitions.
type ConnectionListener interface {
	HostsConnected(a, b *Host)
	HostsDisconnected(a, b *Host)
}
