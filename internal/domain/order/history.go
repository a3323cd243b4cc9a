package order

// HistoryLimit is the number of snapshots kept for undo and redo.
const HistoryLimit = 20

// history holds committed snapshots. The entry under cursor is the current
// state; entries before it can be undone to and entries after it redone.
type history struct {
	entries []State
	cursor  int
	limit   int
}

func newHistory(initial State, limit int) *history {
	return &history{entries: []State{initial.Clone()}, limit: limit}
}

// push drops the redo tail, appends s and evicts the oldest entries over limit.
func (h *history) push(s State) {
	h.entries = append(h.entries[:h.cursor+1], s.Clone())
	if over := len(h.entries) - h.limit; over > 0 {
		clear(h.entries[:over])
		h.entries = h.entries[over:]
	}
	h.cursor = len(h.entries) - 1
}

func (h *history) undo() (State, bool) {
	if h.cursor == 0 {
		return State{}, false
	}
	h.cursor--
	return h.entries[h.cursor].Clone(), true
}

func (h *history) redo() (State, bool) {
	if h.cursor >= len(h.entries)-1 {
		return State{}, false
	}
	h.cursor++
	return h.entries[h.cursor].Clone(), true
}

func (h *history) canUndo() bool { return h.cursor > 0 }

func (h *history) canRedo() bool { return h.cursor < len(h.entries)-1 }

func (h *history) len() int { return len(h.entries) }
