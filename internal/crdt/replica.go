// Package crdt implements the in-memory, mergeable document value a
// Room manages: a replicated growable array (RGA) of characters. It
// supports two operations, apply update bytes and encode full state as
// update bytes; both are idempotent, commutative, and associative, so
// concurrent edits converge to the same text regardless of delivery
// order. Characters carry a (seq, site) id and a parent pointer, with
// deletes kept as tombstones; insertion order among concurrent siblings
// is resolved by descending (seq, site) id.
package crdt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// id identifies one inserted character globally. The zero value is used
// as the sentinel "before the start of the document".
type id struct {
	Seq  uint64
	Site string
}

func (a id) zero() bool { return a.Seq == 0 && a.Site == "" }

// dominates reports whether a must be ordered before b among siblings
// that share the same parent — higher seq wins, ties broken by site id.
// This total order is what lets concurrent inserts at the same position
// converge to the same relative order on every replica.
func (a id) dominates(b id) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.Site > b.Site
}

type node struct {
	ID      id
	After   id
	Char    rune
	Deleted bool
}

type wireNode struct {
	Seq       uint64 `json:"seq"`
	Site      string `json:"site"`
	AfterSeq  uint64 `json:"afterSeq"`
	AfterSite string `json:"afterSite"`
	Char      string `json:"ch"`
	Deleted   bool   `json:"deleted"`
}

// Replica is one site's view of a collaboratively edited text document.
// It is safe for concurrent use.
type Replica struct {
	mu       sync.RWMutex
	site     string
	seq      uint64
	nodes    []node      // document order, tombstones included
	byID     map[id]int  // id -> index into nodes
	parentOf map[id]id   // id -> After, for ancestry checks during insert
}

// New creates an empty replica for the given site (connection/room id
// used to break ties between concurrent inserts; callers typically pass
// a per-room constant such as "server" since the relay applies all
// updates through one serialization point — see Room).
func New(site string) *Replica {
	return &Replica{
		site:     site,
		byID:     make(map[id]int),
		parentOf: make(map[id]id),
	}
}

// Load constructs a replica by applying a previously encoded state, for
// Room creation from a snapshot.
func Load(site string, state []byte) (*Replica, error) {
	r := New(site)
	if len(state) == 0 {
		return r, nil
	}
	if err := r.ApplyUpdate(state); err != nil {
		return nil, err
	}
	return r, nil
}

// InsertText inserts text at visible rune-offset pos and returns the
// encoded update to broadcast to peers. pos is clamped to [0, len(Content())].
func (r *Replica) InsertText(pos int, text string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	after := r.visibleNodeAt(pos - 1)
	var inserted []node
	for _, ch := range text {
		r.seq++
		n := node{ID: id{Seq: r.seq, Site: r.site}, After: after, Char: ch}
		r.insertLocked(n)
		inserted = append(inserted, n)
		after = n.ID
	}
	return encodeNodes(inserted)
}

// DeleteRange tombstones the visible runes in [start,end) and returns
// the encoded update to broadcast.
func (r *Replica) DeleteRange(start, end int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if end <= start {
		return encodeNodes(nil)
	}
	var changed []node
	visible := 0
	for i := range r.nodes {
		if r.nodes[i].Deleted {
			continue
		}
		if visible >= start && visible < end {
			r.nodes[i].Deleted = true
			changed = append(changed, r.nodes[i])
		}
		visible++
	}
	return encodeNodes(changed)
}

// ApplyUpdate merges update bytes (either a full encoded state or an
// incremental set of nodes) into the replica. It is idempotent: applying
// the same update twice leaves the replica unchanged the second time.
func (r *Replica) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return nil
	}
	var wire []wireNode
	if err := json.Unmarshal(update, &wire); err != nil {
		return fmt.Errorf("crdt: decode update: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range wire {
		n := node{
			ID:      id{Seq: w.Seq, Site: w.Site},
			After:   id{Seq: w.AfterSeq, Site: w.AfterSite},
			Deleted: w.Deleted,
		}
		if w.Char != "" {
			n.Char = []rune(w.Char)[0]
		}
		r.mergeLocked(n)
	}
	return nil
}

// EncodeState returns the full current state as update bytes, suitable
// for doc_sync or persistence.
func (r *Replica) EncodeState() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return encodeNodes(r.nodes)
}

// Content returns the current visible text.
func (r *Replica) Content() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for _, n := range r.nodes {
		if !n.Deleted {
			b.WriteRune(n.Char)
		}
	}
	return b.String()
}

// Len returns the number of visible (non-tombstoned) runes.
func (r *Replica) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, nd := range r.nodes {
		if !nd.Deleted {
			n++
		}
	}
	return n
}

// visibleNodeAt returns the id of the node at visible rune-index idx,
// or the zero id if idx < 0 (meaning "insert at the very start").
// Caller must hold r.mu.
func (r *Replica) visibleNodeAt(idx int) id {
	if idx < 0 {
		return id{}
	}
	visible := -1
	for i := range r.nodes {
		if r.nodes[i].Deleted {
			continue
		}
		visible++
		if visible == idx {
			return r.nodes[i].ID
		}
	}
	// idx beyond the end of the document: append after the last node.
	if len(r.nodes) == 0 {
		return id{}
	}
	return r.nodes[len(r.nodes)-1].ID
}

// mergeLocked merges a single remote node into the structure. Already
// present ids only OR their tombstone flag in (idempotent); new ids are
// structurally inserted. The local seq counter is advanced past every
// merged seq so later local inserts dominate what is already known.
// Caller must hold r.mu.
func (r *Replica) mergeLocked(n node) {
	if n.ID.Seq > r.seq {
		r.seq = n.ID.Seq
	}
	if existingIdx, ok := r.byID[n.ID]; ok {
		if n.Deleted {
			r.nodes[existingIdx].Deleted = true
		}
		return
	}
	r.insertLocked(n)
}

// insertLocked places a new (not-yet-seen) node into document order.
// Caller must hold r.mu. If n.After is non-zero but unknown (the parent
// has never been observed by this replica, a causally-out-of-order
// delivery that should not occur given updates are always applied
// through one serialization point in topological order), the node is
// inserted at the document head rather than dropped, so convergence
// degrades gracefully instead of silently losing an edit.
func (r *Replica) insertLocked(n node) {
	parentIdx := -1
	if !n.After.zero() {
		if idx, ok := r.byID[n.After]; ok {
			parentIdx = idx
		}
	}

	// Scan forward while we remain within n.After's subtree, stopping at
	// the first direct sibling (same After) that n dominates — n belongs
	// right before it. Siblings that dominate n are skipped together with
	// their descendants one node at a time; since those remain
	// "descendant of n.After" throughout, the loop condition keeps
	// advancing past their entire subtree without needing a separate
	// subtree-skip helper.
	insertAt := parentIdx + 1
	for insertAt < len(r.nodes) && r.isDescendant(r.nodes[insertAt].ID, n.After) {
		if r.nodes[insertAt].After == n.After && n.ID.dominates(r.nodes[insertAt].ID) {
			break
		}
		insertAt++
	}

	r.nodes = append(r.nodes, node{})
	copy(r.nodes[insertAt+1:], r.nodes[insertAt:])
	r.nodes[insertAt] = n

	for nodeID, idx := range r.byID {
		if idx >= insertAt {
			r.byID[nodeID] = idx + 1
		}
	}
	r.byID[n.ID] = insertAt
	r.parentOf[n.ID] = n.After
}

// isDescendant reports whether candidate is ancestor itself or nested
// below it, by walking the parent chain. The zero id is the virtual
// document root: every node is (trivially) within its "subtree", so for
// a root-level insert the scan in insertLocked ends either at the
// explicit dominance check or at the end of the document.
func (r *Replica) isDescendant(candidate, ancestor id) bool {
	if ancestor.zero() {
		return true
	}
	cur := candidate
	for {
		if cur == ancestor {
			return true
		}
		parent, ok := r.parentOf[cur]
		if !ok {
			return false
		}
		cur = parent
	}
}

func encodeNodes(nodes []node) ([]byte, error) {
	wire := make([]wireNode, len(nodes))
	for i, n := range nodes {
		wire[i] = wireNode{
			Seq:       n.ID.Seq,
			Site:      n.ID.Site,
			AfterSeq:  n.After.Seq,
			AfterSite: n.After.Site,
			Char:      string(n.Char),
			Deleted:   n.Deleted,
		}
	}
	return json.Marshal(wire)
}
