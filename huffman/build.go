package huffman

import (
	"math"
	"sort"
)

// A node of a Huffman tree under construction. Leaves have left == -1 and
// keep their symbol in rightOrValue.
type node struct {
	count        uint32
	left         int32
	rightOrValue int32
}

// A Builder computes length-limited Huffman code lengths from symbol
// frequencies. Its zero value is ready to use; it keeps its scratch space
// between calls.
type Builder struct {
	tree []node
}

// Lengths stores in lengths (which must be at least as long as freq) code
// lengths no longer than maxBits for the symbols of freq, and returns the
// filled prefix of lengths.
//
// At least two symbols always get codes, so the result is a complete code
// that any decoder accepts; if freq has fewer than two nonzero entries,
// symbols 0 and 1 are used to fill in.
//
// When the optimal tree is too deep, the construction is repeated with the
// rare symbols' counts raised to a floor that doubles each time, which
// flattens the tree until it fits.
func (b *Builder) Lengths(freq []uint32, maxBits int, lengths []uint8) []uint8 {
	lengths = lengths[:len(freq)]
	for i := range lengths {
		lengths[i] = 0
	}

	used := 0
	last := -1
	for sym, f := range freq {
		if f != 0 {
			used++
			last = sym
		}
	}
	if used < 2 {
		switch {
		case last < 0:
			lengths[0], lengths[1] = 1, 1
		case last == 0:
			lengths[0], lengths[1] = 1, 1
		default:
			lengths[0], lengths[last] = 1, 1
		}
		return lengths
	}

	size := 2*used + 1
	if cap(b.tree) < size {
		b.tree = make([]node, size)
	}
	tree := b.tree[:size]
	sentinel := node{count: math.MaxUint32, left: -1, rightOrValue: -1}

	for countLimit := uint32(1); ; countLimit *= 2 {
		n := 0
		for sym := len(freq) - 1; sym >= 0; sym-- {
			if freq[sym] == 0 {
				continue
			}
			c := freq[sym]
			if c < countLimit {
				c = countLimit
			}
			tree[n] = node{count: c, left: -1, rightOrValue: int32(sym)}
			n++
		}
		leaves := tree[:n]
		sort.SliceStable(leaves, func(i, j int) bool {
			return leaves[i].count < leaves[j].count
		})

		// The nodes are:
		// [0, n): the sorted leaf nodes that we start with.
		// [n]: a sentinel.
		// [n+1, 2n): new parent nodes, which are naturally in ascending order.
		// [2n]: a sentinel at the end as well.
		tree[n] = sentinel
		tree[n+1] = sentinel
		i := 0     // next leaf
		j := n + 1 // next parent
		for k := n - 1; k > 0; k-- {
			var left, right int
			if tree[i].count <= tree[j].count {
				left = i
				i++
			} else {
				left = j
				j++
			}
			if tree[i].count <= tree[j].count {
				right = i
				i++
			} else {
				right = j
				j++
			}

			end := 2*n - k
			tree[end] = node{
				count:        tree[left].count + tree[right].count,
				left:         int32(left),
				rightOrValue: int32(right),
			}
			tree[end+1] = sentinel
		}

		if setDepth(2*n-1, tree, lengths, maxBits) {
			return lengths
		}
	}
}

// setDepth walks the tree rooted at p0 and stores each leaf's depth. It
// returns false if some leaf is deeper than maxDepth.
func setDepth(p0 int, pool []node, depth []uint8, maxDepth int) bool {
	var stack [MaxBits + 2]int
	level := 0
	p := p0
	stack[0] = -1
	for {
		if pool[p].left >= 0 {
			level++
			if level > maxDepth {
				return false
			}
			stack[level] = int(pool[p].rightOrValue)
			p = int(pool[p].left)
			continue
		}
		depth[pool[p].rightOrValue] = uint8(level)

		for level >= 0 && stack[level] == -1 {
			level--
		}
		if level < 0 {
			return true
		}
		p = stack[level]
		stack[level] = -1
	}
}
