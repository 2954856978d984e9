package node

import (
	"context"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

// Diff computes the changes turning have into want. It is pure: no
// device call is made, and the returned set is empty when the node
// already satisfies the declaration. Address and FQDN are creation-only
// and never diffed.
func Diff(want Desired, have *bigip.NodeState) (*reconcile.ChangeSet, error) {
	cs := &reconcile.ChangeSet{}
	modify := func(patch bigip.Patch) reconcile.ApplyFunc {
		return func(ctx context.Context, ops bigip.Ops) error {
			return ops.ModifyNode(ctx, want.Name, want.Partition, patch)
		}
	}

	if want.Description != nil && *want.Description != have.Description {
		cs.Add("description", *want.Description, modify(bigip.Patch{"description": *want.Description}))
	}

	if spec := want.monitorSpec(); !spec.Unset() {
		resolved, changed, err := reconcile.ResolveMonitors(spec, reconcile.ParseMonitorExpr(have.Monitor))
		if err != nil {
			return nil, err
		}
		if changed {
			expr := resolved.Expr()
			cs.Add("monitor", expr, modify(bigip.Patch{"monitor": expr}))
		}
	}

	if pair, changed := want.State.PairChange(have.Session, have.State); changed {
		cs.Add("state", string(want.State), modify(pair.Patch()))
	}

	return cs, nil
}
