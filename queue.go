/*
 * Filename: /Users/bao/code/scaffolder/queue.go
 * Path: /Users/bao/code/scaffolder
 * Created Date: Friday, March 13th 2020, 4:31:50 pm
 * Author: bao
 *
 * Copyright (c) 2020 Haibao Tang
 */

package scaffolder

// Item is an edge waiting to be contracted, seen from node u
type Item struct {
	u     int
	edge  GraphEdge
	index int
}

// ends is the node pair of the item, smaller node first
func (r *Item) ends() (int, int) {
	if r.edge.End < r.u {
		return r.edge.End, r.u
	}
	return r.u, r.edge.End
}

// before ranks items by support, ties broken by the node pair (smaller node
// first), then by the side the item is seen from
func (r *Item) before(o *Item) bool {
	if r.edge.NumLink != o.edge.NumLink {
		return r.edge.NumLink > o.edge.NumLink
	}
	a1, a2 := r.ends()
	b1, b2 := o.ends()
	if a1 != b1 {
		return a1 < b1
	}
	if a2 != b2 {
		return a2 < b2
	}
	if r.u != o.u {
		return r.u < o.u
	}
	return edgeLess(&r.edge, &o.edge)
}

// A PriorityQueue implements heap.Interface and holds Items.
type PriorityQueue []*Item

// Len returns the number of items in the queue
func (pq PriorityQueue) Len() int { return len(pq) }

// Less defines the way items get ordered
func (pq PriorityQueue) Less(i, j int) bool {
	// We want Pop to give us the best supported edge first
	return pq[i].before(pq[j])
}

// Swap exchanges values of two elements
func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the queue
func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*Item)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes the best element
func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}
