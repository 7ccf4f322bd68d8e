package coordinator

import "github.com/absmach/robustfl/pkg/protocol"

// Barrier tracks the last tag each roster member reported in the current
// round. The roster is fixed when the barrier is built.
type Barrier struct {
	roster  []string
	members map[string]struct{}
	table   map[string]protocol.Action
}

func NewBarrier(roster []string) *Barrier {
	b := &Barrier{
		roster:  append([]string(nil), roster...),
		members: make(map[string]struct{}, len(roster)),
		table:   make(map[string]protocol.Action, len(roster)),
	}
	for _, id := range roster {
		b.members[id] = struct{}{}
	}

	return b
}

func (b *Barrier) Has(worker string) bool {
	_, ok := b.members[worker]

	return ok
}

// Record stores tag for worker, overwriting any earlier tag. Workers outside
// the roster are rejected.
func (b *Barrier) Record(worker string, tag protocol.Action) bool {
	if !b.Has(worker) {
		return false
	}
	b.table[worker] = tag

	return true
}

func (b *Barrier) Tag(worker string) (protocol.Action, bool) {
	tag, ok := b.table[worker]

	return tag, ok
}

func (b *Barrier) Reset() {
	clear(b.table)
}

// AllMatch is true iff every roster member holds exactly expected.
// With an empty roster it is trivially true.
func (b *Barrier) AllMatch(expected protocol.Action) bool {
	for _, id := range b.roster {
		if tag, ok := b.table[id]; !ok || tag != expected {
			return false
		}
	}

	return true
}

// Pending lists roster members that do not hold expected, in roster order.
func (b *Barrier) Pending(expected protocol.Action) []string {
	var pending []string
	for _, id := range b.roster {
		if tag, ok := b.table[id]; !ok || tag != expected {
			pending = append(pending, id)
		}
	}

	return pending
}

func (b *Barrier) Roster() []string {
	return append([]string(nil), b.roster...)
}
