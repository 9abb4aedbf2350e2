package repository

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/medrank/internal/domain/model"
)

// Treap-based leaderboard of one profile's scoring batch.
//
// Ordering: composite DESC, then doctor id ASC, NaN composites last. "less"
// means ranks earlier, so in-order traversal yields the leaderboard from
// best to worst. Node priorities are hashes of the doctor id, which keeps
// the tree shape independent of insertion order.

type node struct {
	id        string
	composite float64
	prio      uint64
	left      *node
	right     *node
	size      int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore float64, aID string, bScore float64, bID string) bool {
	an, bn := math.IsNaN(aScore), math.IsNaN(bScore)
	switch {
	case an != bn:
		return bn
	case !an && aScore != bScore:
		return aScore > bScore
	default:
		return aID < bID
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, composite float64) *node {
	if n == nil {
		return &node{id: id, composite: composite, prio: xxhash.Sum64String(id), size: 1}
	}
	if less(composite, id, n.composite, n.id) {
		n.left = insert(n.left, id, composite)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, composite)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// rankOf returns the 1-based position of (composite, id), 0 if absent.
func rankOf(n *node, composite float64, id string) int {
	r := 0
	for n != nil {
		if n.id == id {
			return r + nsize(n.left) + 1
		}
		if less(composite, id, n.composite, n.id) {
			n = n.left
		} else {
			r += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// collectTopN appends up to limit records in rank order.
func collectTopN(n *node, limit int, records map[string]model.ScoringRecord, out *[]model.ScoringRecord) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, records, out)
	if len(*out) < limit {
		if rec, ok := records[n.id]; ok {
			rec.Rank = len(*out) + 1
			*out = append(*out, rec)
		}
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, records, out)
	}
}

// board is an immutable leaderboard. It is built once per batch and
// replaced wholesale, so readers need no lock beyond the store's.
type board struct {
	root *node
	byID map[string]model.ScoringRecord
}

func newBoard(records []model.ScoringRecord) *board {
	b := &board{byID: make(map[string]model.ScoringRecord, len(records))}
	for _, r := range records {
		if old, ok := b.byID[r.DoctorID]; ok {
			b.root = deleteNode(b.root, old.DoctorID, old.Composite)
		}
		b.byID[r.DoctorID] = r
		b.root = insert(b.root, r.DoctorID, r.Composite)
	}
	return b
}

func deleteNode(n *node, id string, composite float64) *node {
	if n == nil {
		return nil
	}
	if id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, composite)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, composite)
		}
	} else if less(composite, id, n.composite, n.id) {
		n.left = deleteNode(n.left, id, composite)
	} else {
		n.right = deleteNode(n.right, id, composite)
	}
	fix(n)
	return n
}

func (b *board) len() int { return len(b.byID) }

// get returns the doctor's record with its current rank.
func (b *board) get(doctorID string) (model.ScoringRecord, bool) {
	rec, ok := b.byID[doctorID]
	if !ok {
		return model.ScoringRecord{}, false
	}
	rec.Rank = rankOf(b.root, rec.Composite, rec.DoctorID)
	return rec, true
}

func (b *board) top(n int) []model.ScoringRecord {
	if n > b.len() {
		n = b.len()
	}
	out := make([]model.ScoringRecord, 0, n)
	collectTopN(b.root, n, b.byID, &out)
	return out
}
