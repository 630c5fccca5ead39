// Package propensity implements the sum-tree ("propensity heap") used to
// draw a mixture species index with probability proportional to a per-species
// weight in O(log N), and to update a single weight in O(log N). Leaf
// position i always corresponds to the species at Mixture.complexes[i]; the
// mixture package is responsible for keeping every heap's leaf indices in
// lockstep with its own species list.
package propensity

import "github.com/sitesim/reactor/pkg/errors"

// Heap is a concrete array-embedded complete binary tree: a single slice
// whose internal nodes store the sum of their two children and whose leaves
// (starting at index 2^h-1 for a tree of height h) store the current
// per-species weights. Capacity doubles by growing one level at a time,
// amortizing insert cost rather than rebuilding from scratch on every call.
type Heap struct {
	tree      []float64
	height    int
	occupancy int
}

// NewHeap returns an empty heap sized to hold at least initialCapacity
// leaves without growing.
func NewHeap(initialCapacity int) *Heap {
	h := heightFor(initialCapacity)
	return &Heap{tree: make([]float64, treeSize(h)), height: h}
}

func heightFor(n int) int {
	h := 1
	for capacityOf(h) < n {
		h++
	}
	return h
}

func treeSize(h int) int    { return (1 << uint(h+1)) - 1 }
func leavesStart(h int) int { return (1 << uint(h)) - 1 }
func capacityOf(h int) int  { return 1 << uint(h) }

// Capacity returns the number of leaves the heap can currently hold without growing.
func (hp *Heap) Capacity() int { return capacityOf(hp.height) }

// Occupancy returns the number of currently active leaves.
func (hp *Heap) Occupancy() int { return hp.occupancy }

// Root returns the total weight held by the heap (the sum of all active leaves).
func (hp *Heap) Root() float64 {
	if len(hp.tree) == 0 {
		return 0
	}
	return hp.tree[0]
}

// Insert appends a new leaf with weight w, growing the tree by one level
// first if it is at capacity, and returns the leaf's index.
func (hp *Heap) Insert(w float64) int {
	if hp.occupancy == hp.Capacity() {
		hp.grow()
	}
	idx := hp.occupancy
	hp.occupancy++
	hp.setLeaf(idx, w)
	return idx
}

// Modify sets leaf i's weight to w and propagates the change to the root.
func (hp *Heap) Modify(i int, w float64) {
	hp.setLeaf(i, w)
}

// Leaf returns the current weight at leaf index i.
func (hp *Heap) Leaf(i int) float64 {
	return hp.tree[leavesStart(hp.height)+i]
}

// Delete removes leaf i by overwriting it with the last active leaf, zeroing
// the last slot, and propagating sums on both affected root paths — the
// "overwrite-with-last + shrink" technique. It returns the
// weight that was at i before deletion. Callers (the mixture) are
// responsible for updating whatever external index map tracked the leaf
// that used to live at `occupancy-1`, since it now lives at i.
func (hp *Heap) Delete(i int) float64 {
	last := hp.occupancy - 1
	deleted := hp.Leaf(i)
	if i != last {
		hp.setLeaf(i, hp.Leaf(last))
	}
	hp.setLeaf(last, 0)
	hp.occupancy--
	return deleted
}

func (hp *Heap) setLeaf(i int, w float64) {
	pos := leavesStart(hp.height) + i
	hp.tree[pos] = w
	hp.propagate(pos)
}

func (hp *Heap) propagate(pos int) {
	for pos > 0 {
		parent := (pos - 1) / 2
		left := 2*parent + 1
		right := 2*parent + 2
		hp.tree[parent] = hp.tree[left] + hp.tree[right]
		pos = parent
	}
}

// grow doubles the heap's capacity by allocating a tree one level taller,
// copying the current leaf block into the new, wider leaf range, and
// reinitializing every internal sum by a single postorder pass.
func (hp *Heap) grow() {
	newHeight := hp.height + 1
	newTree := make([]float64, treeSize(newHeight))

	oldStart := leavesStart(hp.height)
	newStart := leavesStart(newHeight)
	copy(newTree[newStart:newStart+hp.Capacity()], hp.tree[oldStart:oldStart+hp.Capacity()])

	hp.tree = newTree
	hp.height = newHeight
	hp.rebuildInternal()
}

// rebuildInternal recomputes every internal node as the sum of its two
// children, from the deepest internal level up to the root.
func (hp *Heap) rebuildInternal() {
	start := leavesStart(hp.height)
	for i := start - 1; i >= 0; i-- {
		hp.tree[i] = hp.tree[2*i+1] + hp.tree[2*i+2]
	}
}

// Draw performs a top-down weighted descent for 0 <= rv < Root(), returning
// the leaf index selected. At each internal node, rv < left child's sum
// descends left; otherwise rv is reduced by the left child's sum and the
// descent continues right.
func (hp *Heap) Draw(rv float64) (int, error) {
	if hp.Root() <= 0 {
		return 0, errors.Invariant(errors.CodeNoChannelSelectable, "heap draw: root is non-positive")
	}
	if rv < 0 || rv >= hp.Root() {
		return 0, errors.Invariant(errors.CodeInvariantViolation, "heap draw: rv out of [0, root) range")
	}
	pos := 0
	leafStart := leavesStart(hp.height)
	for pos < leafStart {
		left := 2*pos + 1
		right := 2*pos + 2
		if rv < hp.tree[left] {
			pos = left
		} else {
			rv -= hp.tree[left]
			pos = right
		}
	}
	return pos - leafStart, nil
}

// CheckInvariant verifies that every internal node equals the sum of its two
// children, returning an invariant-violation error at the first mismatch.
// Used by tests and by debug-mode driver loops.
func (hp *Heap) CheckInvariant() error {
	start := leavesStart(hp.height)
	for i := start - 1; i >= 0; i-- {
		if hp.tree[i] != hp.tree[2*i+1]+hp.tree[2*i+2] {
			return errors.Invariant(errors.CodeHeapRootMismatch, "heap invariant violated")
		}
	}
	return nil
}
