package portfolio

import (
	"time"

	"kalshi-edge/pkg/types"
)

// Lot is a quantity of contracts acquired at one unit cost, consumed
// head-first on sale.
type Lot struct {
	Qty        int64
	UnitCost   types.Price
	AcquiredTS time.Time
}

// lotQueue is a FIFO of lots backed by a slice arena with a rolling
// head index. Popping advances head instead of reslicing, so handles
// into the arena stay stable within a reconcile pass; compact reclaims
// the dead prefix once it dominates the slice.
type lotQueue struct {
	lots []Lot
	head int
}

func (q *lotQueue) push(l Lot) {
	q.lots = append(q.lots, l)
}

// front returns the head lot for in-place mutation. Callers must check
// empty first.
func (q *lotQueue) front() *Lot {
	return &q.lots[q.head]
}

func (q *lotQueue) pop() {
	q.head++
	q.compact()
}

func (q *lotQueue) empty() bool {
	return q.head >= len(q.lots)
}

func (q *lotQueue) clear() {
	q.lots = q.lots[:0]
	q.head = 0
}

// open returns a copy of the live lots, head first.
func (q *lotQueue) open() []Lot {
	if q.empty() {
		return nil
	}
	out := make([]Lot, len(q.lots)-q.head)
	copy(out, q.lots[q.head:])
	return out
}

// compact drops the consumed prefix when it outweighs the live tail.
func (q *lotQueue) compact() {
	if q.head < 32 || q.head*2 < len(q.lots) {
		return
	}
	n := copy(q.lots, q.lots[q.head:])
	q.lots = q.lots[:n]
	q.head = 0
}
