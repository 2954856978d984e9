package reconcile

import (
	"context"

	"github.com/dokzlo13/ltmsync/internal/bigip"
)

// ApplyFunc issues the device call realizing one change. During updates
// ops is the open transaction, so nothing lands until commit.
type ApplyFunc func(ctx context.Context, ops bigip.Ops) error

// Change is one property mutation. Value is the reported new value, a
// ListDelta for list properties; Apply issues it.
type Change struct {
	Field string
	Value any
	Apply ApplyFunc
}

// ChangeSet accumulates property mutations in apply order. An empty set
// means the pass found nothing to do.
type ChangeSet struct {
	changes []Change
}

// Add appends one change.
func (cs *ChangeSet) Add(field string, value any, apply ApplyFunc) {
	cs.changes = append(cs.changes, Change{Field: field, Value: value, Apply: apply})
}

func (cs *ChangeSet) Empty() bool {
	return len(cs.changes) == 0
}

func (cs *ChangeSet) Len() int {
	return len(cs.changes)
}

// Changes returns the accumulated changes in apply order.
func (cs *ChangeSet) Changes() []Change {
	return cs.changes
}

// Has reports whether a change for the named field was recorded.
func (cs *ChangeSet) Has(field string) bool {
	for _, c := range cs.changes {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Report maps each changed field to its reported new value.
func (cs *ChangeSet) Report() map[string]any {
	if len(cs.changes) == 0 {
		return nil
	}
	out := make(map[string]any, len(cs.changes))
	for _, c := range cs.changes {
		out[c.Field] = c.Value
	}
	return out
}
