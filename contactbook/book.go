package contactbook

import (
	"math"

	"golang.org/x/exp/slices"
)

// Entry is what a host believes about one neighbor k.
type Entry struct {
	// Exemplar is the exemplar k is believed to follow.
	Exemplar int
	// ContactFitness is the smoothed per-slot contact presence with k.
	ContactFitness float64
	// WeightedFitness is k's own weighted fitness when last heard.
	WeightedFitness float64
	Slot            int
	ContactFreq     int
	ContactDuration float64
	LastUpdated     float64
}

// Book is one host's exemplar table plus its own fitness scalars. All
// methods run on the simulation goroutine.
type Book struct {
	self   int
	params Params

	exemplar    int
	lastUpdated float64

	weightedFitness   float64
	responderFitness  float64
	responderFreq     int
	responderDuration float64
	responderStart    float64

	slot       int
	lastSlot   float64
	prevEnergy float64

	entries      map[int]*Entry
	contactStart map[int]float64
}

// New creates the book of host self, which starts as its own exemplar.
func New(self int, p Params) *Book {
	return &Book{
		self:         self,
		params:       p,
		exemplar:     self,
		prevEnergy:   1,
		entries:      make(map[int]*Entry),
		contactStart: make(map[int]float64),
	}
}

// Self returns the owning host's address.
func (b *Book) Self() int { return b.self }

// Params returns the book's parameters.
func (b *Book) Params() Params { return b.params }

// Exemplar returns the exemplar this host follows.
func (b *Book) Exemplar() int { return b.exemplar }

// IsExemplar reports whether the host is its own exemplar.
func (b *Book) IsExemplar() bool { return b.exemplar == b.self }

// SetExemplar overrides the exemplar and stamps the update time.
func (b *Book) SetExemplar(addr int, now float64) {
	b.exemplar = addr
	b.lastUpdated = now
}

// WeightedFitness returns wF.
func (b *Book) WeightedFitness() float64 { return b.weightedFitness }

// SetWeightedFitness overrides wF.
func (b *Book) SetWeightedFitness(v float64) { b.weightedFitness = v }

// ResponderFitness returns rF.
func (b *Book) ResponderFitness() float64 { return b.responderFitness }

// ResponderContacts returns this slot's responder meeting count and
// accumulated duration.
func (b *Book) ResponderContacts() (int, float64) {
	return b.responderFreq, b.responderDuration
}

// Slot returns the current slot number.
func (b *Book) Slot() int { return b.slot }

// LastUpdated returns the time the host's own state last changed.
func (b *Book) LastUpdated() float64 { return b.lastUpdated }

// Len returns the number of table rows.
func (b *Book) Len() int { return len(b.entries) }

// Entry returns a copy of the row for k.
func (b *Book) Entry(k int) (Entry, bool) {
	e, ok := b.entries[k]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetEntry stores a row for k.
func (b *Book) SetEntry(k int, e Entry) {
	cp := e
	b.entries[k] = &cp
}

// ContactFitness returns cF toward k, or 0 for an unknown host.
func (b *Book) ContactFitness(k int) float64 {
	if e, ok := b.entries[k]; ok {
		return e.ContactFitness
	}
	return 0
}

// Neighbors returns the known hosts in ascending address order.
func (b *Book) Neighbors() []int {
	keys := make([]int, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Members returns the hosts believed to follow this host as exemplar.
func (b *Book) Members() []int {
	var out []int
	for _, k := range b.Neighbors() {
		if b.entries[k].Exemplar == b.self {
			out = append(out, k)
		}
	}
	return out
}

// ContactStarted records the start of a survivor contact on both books.
func (b *Book) ContactStarted(other *Book, now float64) {
	b.contactStart[other.self] = now
	other.contactStart[b.self] = now
}

// ResponderContactStarted records the start of a contact with a responder.
func (b *Book) ResponderContactStarted(now float64) {
	b.responderStart = now
}

// ResponderContactEnded folds a finished responder contact into the
// slot accumulators.
func (b *Book) ResponderContactEnded(now float64) {
	b.responderDuration += now - b.responderStart
	b.responderFreq++
}

// Meet runs the meeting event between two survivors whose contact just
// ended: record the contact, merge each table from the other, then
// resolve the case where both are exemplars.
func (b *Book) Meet(other *Book, now float64) {
	d := now - b.contactStart[other.self]
	od := now - other.contactStart[b.self]

	b.observe(other, d, now)
	other.observe(b, od, now)
	Resolve(b, other, now)
}

// observe updates the row for the met host and merges its table.
func (b *Book) observe(other *Book, duration, now float64) {
	e, ok := b.entries[other.self]
	if !ok {
		e = &Entry{}
		b.entries[other.self] = e
	}
	e.Exemplar = other.exemplar
	e.WeightedFitness = other.weightedFitness
	e.ContactFreq++
	e.ContactDuration += duration
	e.Slot = b.slot
	e.LastUpdated = now

	b.merge(other)
}

// merge copies the other side's belief about every host both tables
// know, when the other side's row is newer. Rows are never created.
func (b *Book) merge(other *Book) {
	for _, k := range other.Neighbors() {
		if k == b.self || k == other.self {
			continue
		}
		mine, ok := b.entries[k]
		if !ok {
			continue
		}
		theirs := other.entries[k]
		if mine.LastUpdated < theirs.LastUpdated {
			mine.Exemplar = theirs.Exemplar
			mine.WeightedFitness = theirs.WeightedFitness
			mine.Slot = theirs.Slot
			mine.LastUpdated = theirs.LastUpdated
		}
	}
}

// CanJoin reports whether every member of b's cluster has contact
// fitness above the threshold toward other, as seen in other's table,
// and other is fit to lead.
func (b *Book) CanJoin(other *Book) bool {
	if other.weightedFitness < b.params.WFThreshold {
		return false
	}
	for _, k := range b.Members() {
		e, ok := other.entries[k]
		if !ok || e.ContactFitness < b.params.CFThreshold {
			return false
		}
	}
	return true
}

// WeakestMember returns the lowest contact fitness among b's members, or
// +Inf without members.
func (b *Book) WeakestMember() float64 {
	least := math.Inf(1)
	for _, k := range b.Members() {
		least = math.Min(least, b.entries[k].ContactFitness)
	}
	return least
}

// JoinCluster makes other the exemplar of b and of b's members, in both
// tables.
func (b *Book) JoinCluster(other *Book, now float64) {
	old := b.self
	b.SetExemplar(other.self, now)
	for _, tbl := range []map[int]*Entry{b.entries, other.entries} {
		for _, e := range tbl {
			if e.Exemplar == old {
				e.Exemplar = other.self
				e.LastUpdated = now
			}
		}
	}
}

// Resolve merges two exemplars' clusters when both rate each other at
// or above the contact threshold. The outcome does not depend on
// argument order.
func Resolve(a, b *Book, now float64) {
	if !a.IsExemplar() || !b.IsExemplar() {
		return
	}
	if a.ContactFitness(b.self) < a.params.CFThreshold || b.ContactFitness(a.self) < b.params.CFThreshold {
		return
	}
	aJoins, bJoins := a.CanJoin(b), b.CanJoin(a)
	switch {
	case aJoins && !bJoins:
		a.JoinCluster(b, now)
	case bJoins && !aJoins:
		b.JoinCluster(a, now)
	case aJoins && bJoins:
		aw, bw := a.WeakestMember(), b.WeakestMember()
		switch {
		case aw < bw:
			a.JoinCluster(b, now)
		case bw < aw:
			b.JoinCluster(a, now)
		case a.self > b.self:
			a.JoinCluster(b, now)
		default:
			b.JoinCluster(a, now)
		}
	}
}

// SlotDue reports whether a slot boundary has passed.
func (b *Book) SlotDue(now float64) bool {
	return now > b.lastSlot+b.params.SlotInterval
}

// SlotTimeout closes the current slot: responder fitness, weighted
// fitness from the energy fraction, contact fitness of every row, then
// exemplar revalidation. It is a no-op when no slot boundary has passed.
func (b *Book) SlotTimeout(now, energyFraction float64) bool {
	if !b.SlotDue(now) {
		return false
	}
	p := b.params
	b.slot++
	b.lastUpdated = now

	b.responderFitness = Round2(EWMA(b.responderFitness, b.sample(b.responderDuration), p.Gamma))
	b.responderFreq, b.responderDuration = 0, 0

	if b.responderFitness < p.RFThreshold {
		b.weightedFitness = 0
	} else {
		rate := (b.prevEnergy - energyFraction) / p.SlotInterval
		b.weightedFitness = Round2(energyFraction * math.Exp(-rate))
	}
	b.prevEnergy = energyFraction

	for _, e := range b.entries {
		e.ContactFitness = Round2(EWMA(e.ContactFitness, b.sample(e.ContactDuration), p.Alpha))
		e.ContactFreq, e.ContactDuration = 0, 0
	}

	b.revalidate()
	b.lastSlot = now
	return true
}

func (b *Book) sample(duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	if b.params.FractionalSample {
		return math.Min(duration/b.params.SlotInterval, 1)
	}
	return 1
}

func (b *Book) revalidate() {
	p := b.params
	if !b.IsExemplar() {
		if b.ContactFitness(b.exemplar) < p.CFThreshold {
			b.exemplar = b.self
		}
		return
	}
	for _, k := range b.Members() {
		e := b.entries[k]
		if e.ContactFitness < p.CFThreshold || b.weightedFitness < p.WFThreshold {
			e.Exemplar = k
		}
	}
}
