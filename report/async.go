package report

import (
	"github.com/Arceliar/phony"

	"github.com/signalsfoundry/dtn-simulator/core"
	"github.com/signalsfoundry/dtn-simulator/model"
)

// AsyncListener stamps router events on the simulation goroutine and
// hands them to observers on its own actor, so slow observers do not
// hold up the tick loop. Messages are replicated before they cross.
type AsyncListener struct {
	phony.Inbox

	clock     core.Clock
	observers []Observer
}

// NewAsyncListener creates the actor.
func NewAsyncListener(clock core.Clock, observers ...Observer) *AsyncListener {
	return &AsyncListener{clock: clock, observers: observers}
}

func (a *AsyncListener) post(ev Event) {
	ev.Time = a.clock.Seconds()
	ev.Message = ev.Message.Replicate()
	a.Act(nil, func() {
		for _, o := range a.observers {
			o.Observe(ev)
		}
	})
}

func (a *AsyncListener) NewMessage(m *model.Message) {
	a.post(Event{Kind: EventCreated, Message: m})
}

func (a *AsyncListener) MessageTransferStarted(m *model.Message, from, to *core.Host) {
	a.post(Event{Kind: EventStarted, Message: m, From: from, To: to})
}

func (a *AsyncListener) MessageDeleted(m *model.Message, where *core.Host, dropped bool) {
	a.post(Event{Kind: EventDeleted, Message: m, From: where, Dropped: dropped})
}

func (a *AsyncListener) MessageTransferAborted(m *model.Message, from, to *core.Host) {
	a.post(Event{Kind: EventAborted, Message: m, From: from, To: to})
}

func (a *AsyncListener) MessageTransferred(m *model.Message, from, to *core.Host, first bool) {
	a.post(Event{Kind: EventTransferred, Message: m, From: from, To: to, First: first})
}

// Flush blocks until every event posted so far has been observed.
func (a *AsyncListener) Flush() {
	phony.Block(a, func() {})
}
