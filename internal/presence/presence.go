// Package presence implements the per-connection presence entries
// tracked by a Room.
package presence

// SelectionRange is a cursor selection; Start must be <= End.
type SelectionRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entry is one connection's live presence within a Room.
type Entry struct {
	ConnectionID  string          `json:"-"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	AvatarColor   string          `json:"avatarColor"`
	CursorPos     int             `json:"cursorPosition"`
	Selection     SelectionRange  `json:"selectionRange"`
	IsTyping      bool            `json:"isTyping"`
	LastHeartbeat int64           `json:"-"` // monotonic ms, never serialized to clients
}

// Update carries the partial fields a cursor_update frame may set. A nil
// pointer/zero-value field means "unchanged": any missing field is
// retained from the previous entry.
type Update struct {
	CursorPos *int
	Selection *SelectionRange
	IsTyping  *bool
}

// Apply merges u into the entry, leaving any unset field untouched.
func (e *Entry) Apply(u Update) {
	if u.CursorPos != nil {
		e.CursorPos = *u.CursorPos
	}
	if u.Selection != nil {
		e.Selection = *u.Selection
	}
	if u.IsTyping != nil {
		e.IsTyping = *u.IsTyping
	}
}

// Dedup returns one entry per distinct UserID, keeping whichever has
// the greatest LastHeartbeat, so a user with two simultaneous tabs is
// only shown once. The underlying map of all entries is untouched: one
// tab leaving never erases the other tab's presence from later views.
func Dedup(entries map[string]*Entry) []*Entry {
	byUser := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		cur, ok := byUser[e.UserID]
		if !ok || e.LastHeartbeat > cur.LastHeartbeat {
			byUser[e.UserID] = e
		}
	}
	out := make([]*Entry, 0, len(byUser))
	for _, e := range byUser {
		out = append(out, e)
	}
	return out
}
