// Package bigip provides access to the load balancer's control API: typed
// resource records, a client interface the reconciliation engine drives, and
// an iControl-REST-shaped implementation of it.
package bigip

import "context"

// Ops is the CRUD surface of the device control API. Read calls return
// ErrNotFound-classified errors when the object does not exist; create calls
// return ErrAlreadyExists-classified errors when it already does. All other
// failures are opaque and must be treated as fatal by callers.
type Ops interface {
	NodeExists(ctx context.Context, name, partition string) (bool, error)
	ReadNode(ctx context.Context, name, partition string) (*NodeState, error)
	CreateNode(ctx context.Context, cfg NodeConfig) error
	ModifyNode(ctx context.Context, name, partition string, patch Patch) error
	DeleteNode(ctx context.Context, name, partition string) error

	VirtualExists(ctx context.Context, name, partition string) (bool, error)
	ReadVirtual(ctx context.Context, name, partition string) (*VirtualState, error)
	CreateVirtual(ctx context.Context, cfg VirtualConfig) error
	ModifyVirtual(ctx context.Context, name, partition string, patch Patch) error
	DeleteVirtual(ctx context.Context, name, partition string) error

	ReadVirtualAddress(ctx context.Context, name, partition string) (*VirtualAddressState, error)
	ModifyVirtualAddress(ctx context.Context, name, partition string, patch Patch) error
}

// Client is the full device surface: CRUD plus the device's transaction
// primitive.
type Client interface {
	Ops

	// Begin opens a device transaction. Mutations issued through the
	// returned Tx become visible atomically when Commit succeeds.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open device transaction.
type Tx interface {
	Ops

	Commit(ctx context.Context) error
}
