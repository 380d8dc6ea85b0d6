package routing

import "math"

const (
	// DefaultProbAlpha is the weight added to a met host before
	// renormalisation.
	DefaultProbAlpha = 1.0
	// DefaultProbSetSize bounds the number of hosts tracked per set.
	DefaultProbSetSize = 50
)

// MeetingProbabilitySet is the MaxProp estimate of how likely the owner
// is to meet each other host next. Values sum to at most 1.
type MeetingProbabilitySet struct {
	probs      map[int]float64
	lastUpdate float64
	alpha      float64
	maxSize    int
}

// NewMeetingProbabilitySet creates an empty set.
func NewMeetingProbabilitySet(maxSize int, alpha float64) *MeetingProbabilitySet {
	return &MeetingProbabilitySet{
		probs:   make(map[int]float64),
		alpha:   alpha,
		maxSize: maxSize,
	}
}

// Update records a meeting with addr: the first meeting takes the whole
// mass, later ones add alpha and renormalise. The least likely host is
// forgotten once the set is full.
func (s *MeetingProbabilitySet) Update(addr int, now float64) {
	s.lastUpdate = now
	if len(s.probs) == 0 {
		s.probs[addr] = 1
		return
	}
	s.probs[addr] += s.alpha
	for k, v := range s.probs {
		s.probs[k] = v / (1 + s.alpha)
	}
	if len(s.probs) >= s.maxSize {
		victim, least := 0, math.Inf(1)
		for k, v := range s.probs {
			if v < least || (v == least && k < victim) {
				victim, least = k, v
			}
		}
		delete(s.probs, victim)
	}
}

// Prob returns the probability of meeting addr.
func (s *MeetingProbabilitySet) Prob(addr int) float64 { return s.probs[addr] }

// Len returns the number of tracked hosts.
func (s *MeetingProbabilitySet) Len() int { return len(s.probs) }

// LastUpdate returns the time of the most recent Update.
func (s *MeetingProbabilitySet) LastUpdate() float64 { return s.lastUpdate }

// All returns a copy of the probabilities.
func (s *MeetingProbabilitySet) All() map[int]float64 {
	out := make(map[int]float64, len(s.probs))
	for k, v := range s.probs {
		out[k] = v
	}
	return out
}

// Replicate returns an independent copy.
func (s *MeetingProbabilitySet) Replicate() *MeetingProbabilitySet {
	c := *s
	c.probs = s.All()
	return &c
}
