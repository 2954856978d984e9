// Package node reconciles network endpoint objects: backend targets a
// pool forwards traffic to. A node is addressed either by a literal IP
// or by an FQDN the device resolves itself.
package node

import (
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

// Desired is the declared target configuration for one node. Nil or
// empty optional fields mean "do not manage this property".
type Desired struct {
	Name      string
	Partition string
	State     reconcile.Lifecycle

	Description *string

	// Exactly one of Address and FQDN is required when the node has to
	// be created. Neither can be changed afterwards.
	Address string
	FQDN    string

	FQDNAddressFamily string
	FQDNAutoPopulate  *bool
	FQDNDownInterval  *int

	MonitorType reconcile.MonitorType
	Quorum      *int
	Monitors    []string
}

func (d Desired) Key() reconcile.Key {
	return reconcile.Key{Kind: reconcile.KindNode, Partition: d.Partition, Name: d.Name}
}

func (d Desired) monitorSpec() reconcile.MonitorSpec {
	return reconcile.MonitorSpec{
		Type:     d.MonitorType,
		Quorum:   d.Quorum,
		Monitors: reconcile.FQNames(d.Partition, d.Monitors),
	}
}
