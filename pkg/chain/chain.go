package chain

import "bytes"

// List describes the node layout shared by all chains of one owner. A
// chain itself is identified only by a head pointer: nil for an empty
// chain, or a pointer to any node of the ring. The head is a cursor,
// not a distinguished node, so the same ring can serve as a hash
// chain, a queue, or an ordered history depending on the head
// convention of the caller.
type List struct {
	keySize   int
	eltSize   int
	eltOffset int // end of the key block, padded for element alignment
}

// Node is one link of a circular doubly linked ring. The key bytes and
// the element bytes live in a single contiguous block. A node keeps
// its address from creation until it is deleted or its chain is freed;
// owners may hold node pointers across arbitrary chain modifications.
type Node struct {
	prev  *Node
	next  *Node
	block []byte
}

// Next returns the clockwise neighbor of n.
func (n *Node) Next() *Node { return n.next }

// Prev returns the counterclockwise neighbor of n.
func (n *Node) Prev() *Node { return n.prev }

// New returns a list descriptor for chains of nodes with keySize-byte
// keys and eltSize-byte elements. The element block is byte-aligned
// until AlignElt raises the alignment.
func New(keySize, eltSize int) *List {
	return &List{
		keySize:   keySize,
		eltSize:   eltSize,
		eltOffset: keySize,
	}
}

// AlignElt pads the node layout so that every element block created
// afterwards starts at a multiple of alignment bytes relative to the
// start of the node block. Called once before any nodes are created;
// alignment is a power of two.
func (l *List) AlignElt(alignment int) {
	l.eltOffset = (l.keySize + (alignment - 1)) &^ (alignment - 1)
}

// Key returns the key block of n.
func (l *List) Key(n *Node) []byte {
	return n.block[:l.keySize:l.keySize]
}

// Elt returns the element block of n. The returned slice stays valid
// and aliased to the node for as long as the node lives.
func (l *List) Elt(n *Node) []byte {
	return n.block[l.eltOffset : l.eltOffset+l.eltSize : l.eltOffset+l.eltSize]
}

// Init sets a head to the empty chain.
func Init(head **Node) {
	*head = nil
}

// PrependNew creates a node holding copies of key and elt and splices
// it in immediately before the current head. The new node becomes the
// head. An empty head yields a singleton ring. Returns the new node.
func (l *List) PrependNew(head **Node, key, elt []byte) *Node {
	n := &Node{block: make([]byte, l.eltOffset+l.eltSize)}
	copy(n.block[:l.keySize], key)
	copy(n.block[l.eltOffset:], elt)
	Prepend(head, n)
	return n
}

// AppendNew creates a node like PrependNew but leaves the head on its
// current node, so the new node becomes the predecessor of the head,
// that is the last node in head order. Returns the new node.
func (l *List) AppendNew(head **Node, key, elt []byte) *Node {
	n := l.PrependNew(head, key, elt)
	*head = (*head).next
	return n
}

// Prepend splices an external node in immediately before the current
// head and moves the head to it. The node's links are overwritten; the
// caller guarantees the node is not a member of another ring.
func Prepend(head **Node, n *Node) {
	if *head == nil {
		n.next = n
		n.prev = n
	} else {
		n.next = *head
		n.prev = (*head).prev
		(*head).prev.next = n
		(*head).prev = n
	}
	*head = n
}

// Append splices an external node in as the predecessor of the head
// without moving the head. See Prepend for the node contract.
func Append(head **Node, n *Node) {
	Prepend(head, n)
	*head = (*head).next
}

// SearchKey walks clockwise from the head and returns the first node
// whose key block equals key, or nil. A nil cmp compares key blocks
// byte-wise; otherwise cmp reports zero iff the two blocks are equal.
func (l *List) SearchKey(head **Node, key []byte, cmp func(a, b []byte) int) *Node {
	n := *head
	if n == nil || key == nil {
		return nil
	}
	for {
		if keyEqual(l.Key(n), key, cmp) {
			return n
		}
		n = n.next
		if n == *head {
			return nil
		}
	}
}

// SearchElt walks clockwise from the head and returns the first node
// whose element block satisfies cmp, or nil. A nil cmp compares
// element blocks byte-wise.
func (l *List) SearchElt(head **Node, elt []byte, cmp func(a, b []byte) int) *Node {
	n := *head
	if n == nil {
		return nil
	}
	for {
		if keyEqual(l.Elt(n), elt, cmp) {
			return n
		}
		n = n.next
		if n == *head {
			return nil
		}
	}
}

func keyEqual(a, b []byte, cmp func(a, b []byte) int) bool {
	if cmp == nil {
		return bytes.Equal(a, b)
	}
	return cmp(a, b) == 0
}

// Remove detaches n from its ring without releasing it; the node can
// be spliced into another chain afterwards. If n is the head, the head
// advances to n's next node, or becomes empty if n was a singleton.
// A nil node or an empty head is a no-op.
func Remove(head **Node, n *Node) {
	if *head == nil || n == nil {
		return
	}
	if n.prev == n && n.next == n {
		*head = nil
		return
	}
	// at least two nodes
	n.next.prev = n.prev
	n.prev.next = n.next
	if *head == n {
		*head = n.next
	}
}

// Delete removes n from its ring and releases it, invoking freeElt on
// the element block first if freeElt is not nil. A nil node or an
// empty head is a no-op.
func (l *List) Delete(head **Node, n *Node, freeElt func(elt []byte)) {
	if *head == nil || n == nil {
		return
	}
	Remove(head, n)
	if freeElt != nil {
		freeElt(l.Elt(n))
	}
	n.prev = nil
	n.next = nil
	n.block = nil
}

// Free releases every node of the chain, invoking freeElt on each
// element block if freeElt is not nil, and sets the head empty.
func (l *List) Free(head **Node, freeElt func(elt []byte)) {
	n := *head
	if n == nil {
		return
	}
	for {
		next := n.next
		if freeElt != nil {
			freeElt(l.Elt(n))
		}
		n.prev = nil
		n.next = nil
		n.block = nil
		if next == *head {
			break
		}
		n = next
	}
	*head = nil
}
