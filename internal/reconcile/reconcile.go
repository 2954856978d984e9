// Package reconcile contains the kind-agnostic parts of the declarative
// reconciliation engine: name qualification, list diffing, the monitor
// expression codec, the lifecycle pair machine, change sets and the
// transactional applier. Resource kinds plug their own field logic on
// top, under reconcile/node and reconcile/virtualserver.
package reconcile

import "github.com/dokzlo13/ltmsync/internal/bigip"

// Kind tags which device resource a key refers to.
type Kind string

const (
	KindNode          Kind = "node"
	KindVirtualServer Kind = "virtual-server"
)

// Key identifies one managed resource on the device.
type Key struct {
	Kind      Kind
	Partition string
	Name      string
}

func (k Key) FullPath() string {
	return bigip.FullPath(k.Partition, k.Name)
}

func (k Key) String() string {
	return string(k.Kind) + " " + k.FullPath()
}

// Action is what a reconciliation pass decided to do.
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Result reports the outcome of one pass over one resource. Fields maps
// each property the pass changed (or would change, under dry run) to the
// value it was driven to.
type Result struct {
	Key     Key
	Action  Action
	Changed bool
	Fields  map[string]any
}
