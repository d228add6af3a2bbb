package queue

// Batch is a named group of items created together, the unit of user-visible
// progress. At most one batch is active at a time; the rest wait in creation
// order. A finished batch stays visible until the next piece of work is
// created, then its items are purged.
type Batch struct {
	ID          int
	Kind        Kind
	Description string

	// SourcePath is the normalized origin of a recursive operation (remote
	// folder for download/delete, local folder for upload). Duplicate
	// requests on the same source are suppressed while the batch is open.
	SourcePath string

	Completed int
	Failed    int
	Total     int

	Active    bool
	Processed bool

	// Expanding is true while a recursive planner is still adding items.
	// A batch never completes mid-expansion, even when every item so far
	// is terminal.
	Expanding bool
}

// Done reports whether every item of the batch reached a terminal state.
// An expanding batch is never done; an expanded batch with zero items is
// (the empty-folder case).
func (b *Batch) Done() bool {
	return !b.Expanding && b.Completed+b.Failed >= b.Total
}

// Progress is the read-only snapshot handed to external callers.
type Progress struct {
	ID          int
	Kind        Kind
	Description string
	Completed   int
	Failed      int
	Total       int
	Active      bool
	Done        bool
}

func (b *Batch) progress() Progress {
	return Progress{
		ID:          b.ID,
		Kind:        b.Kind,
		Description: b.Description,
		Completed:   b.Completed,
		Failed:      b.Failed,
		Total:       b.Total,
		Active:      b.Active,
		Done:        b.Processed,
	}
}
