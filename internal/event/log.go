package event

// Log is the append-only sequence of negotiation events one participant
// reasons over. It preserves insertion order and accepts at most one offer
// and one answer: the first of each kind wins, later duplicates are ignored.
//
// Log is not safe for concurrent use; the owning state machine serializes
// access to it.
type Log struct {
	events []Event
}

func NewLog() *Log {
	return &Log{}
}

// Append records an event, returning false when a duplicate offer or answer
// was rejected.
func (l *Log) Append(ev Event) bool {
	switch ev.EventType() {
	case TypeOffer:
		if _, ok := l.Offer(); ok {
			return false
		}
	case TypeAnswer:
		if _, ok := l.Answer(); ok {
			return false
		}
	}
	l.events = append(l.events, ev)
	return true
}

// Replace rebuilds the log from the given events, in order, applying the
// same duplicate protection as Append. The previous contents are discarded.
func (l *Log) Replace(events []Event) {
	l.events = l.events[:0]
	for _, ev := range events {
		l.Append(ev)
	}
}

// Events returns a copy of the log in insertion order.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) Len() int {
	return len(l.events)
}

// Offer returns the accepted offer, if any.
func (l *Log) Offer() (Offer, bool) {
	for _, ev := range l.events {
		if offer, ok := ev.(Offer); ok {
			return offer, true
		}
	}
	return Offer{}, false
}

// Answer returns the accepted answer, if any.
func (l *Log) Answer() (Answer, bool) {
	for _, ev := range l.events {
		if answer, ok := ev.(Answer); ok {
			return answer, true
		}
	}
	return Answer{}, false
}

// Candidates returns every candidate event in log order.
func (l *Log) Candidates() []Candidate {
	var out []Candidate
	for _, ev := range l.events {
		if c, ok := ev.(Candidate); ok {
			out = append(out, c)
		}
	}
	return out
}

// CandidatesExcluding returns every candidate not emitted by the given
// sender, in log order.
func (l *Log) CandidatesExcluding(sender string) []Candidate {
	var out []Candidate
	for _, ev := range l.events {
		if c, ok := ev.(Candidate); ok && c.Sender != sender {
			out = append(out, c)
		}
	}
	return out
}

// HasGatheredBy reports whether the given sender has finished gathering.
func (l *Log) HasGatheredBy(sender string) bool {
	for _, ev := range l.events {
		if g, ok := ev.(Gathered); ok && g.Sender == sender {
			return true
		}
	}
	return false
}

// HasGatheredExcluding reports whether any sender other than the given one
// has finished gathering.
func (l *Log) HasGatheredExcluding(sender string) bool {
	for _, ev := range l.events {
		if g, ok := ev.(Gathered); ok && g.Sender != sender {
			return true
		}
	}
	return false
}
