package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

const (
	defaultFQDNAddressFamily = "ipv4"
	defaultFQDNDownInterval  = 3600
	defaultFQDNPoll          = time.Second
)

// Reconciler drives one node toward its declaration.
type Reconciler struct {
	Client  bigip.Client
	Applier *reconcile.Applier

	// FQDNPoll is how often a freshly created FQDN node is re-read while
	// the device resolves it.
	FQDNPoll time.Duration
}

// Reconcile runs one pass: existence check, then create, update or
// delete as the declaration demands.
func (r *Reconciler) Reconcile(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionNone}

	if want.MonitorType == reconcile.MonitorSingle && len(want.Monitors) > 1 {
		return result, reconcile.Validationf("When using a 'monitor_type' of 'single', only one monitor may be provided.")
	}

	exists, err := r.Client.NodeExists(ctx, want.Name, want.Partition)
	if err != nil {
		return result, fmt.Errorf("checking %s: %w", key, err)
	}

	if want.State == reconcile.LifecycleAbsent {
		if !exists {
			return result, nil
		}
		return r.delete(ctx, want)
	}

	if !exists {
		res, err := r.create(ctx, want)
		if errors.Is(err, reconcile.ErrConcurrentCreate) {
			// another actor created it between our existence check and
			// the create call; converge over what they made
			return r.update(ctx, want)
		}
		return res, err
	}
	return r.update(ctx, want)
}

func (r *Reconciler) create(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionCreate}

	if want.Address == "" && want.FQDN == "" {
		return result, reconcile.Validationf("At least one of 'address' or 'fqdn' is required when creating a node")
	}
	if want.Address != "" && want.FQDN != "" {
		return result, reconcile.Validationf("Only one of 'address' or 'fqdn' can be provided when creating a node")
	}

	var rule reconcile.MonitorRule
	if spec := want.monitorSpec(); !spec.Unset() {
		var err error
		rule, _, err = reconcile.ResolveMonitors(spec, reconcile.MonitorRule{Type: reconcile.MonitorAndList})
		if err != nil {
			return result, err
		}
	}

	pair, offlineFixup := want.State.CreationPair()
	cfg := bigip.NodeConfig{
		Name:      want.Name,
		Partition: want.Partition,
		Monitor:   rule.Expr(),
		Session:   pair.Session,
		State:     pair.State,
	}
	if want.Description != nil {
		cfg.Description = *want.Description
	}
	if want.FQDN != "" {
		// FQDN nodes carry the wildcard address; the device resolves the
		// real one itself.
		cfg.Address = "any6"
		cfg.FQDN = fqdnSettings(want)
	} else {
		cfg.Address = want.Address
	}

	result.Changed = true
	result.Fields = creationReport(want, cfg)

	steps := []reconcile.Step{
		{Name: "create", Do: func(ctx context.Context) error {
			return r.Client.CreateNode(ctx, cfg)
		}},
	}
	if err := r.Applier.Create(ctx, key, steps); err != nil {
		return result, err
	}
	if r.Applier.DryRun {
		return result, nil
	}

	exists, err := r.Client.NodeExists(ctx, want.Name, want.Partition)
	if err != nil {
		return result, fmt.Errorf("verifying %s: %w", key, err)
	}
	if !exists {
		return result, reconcile.Verificationf("Failed to create the node")
	}

	// user-down cannot be expressed at creation time, so an offline node
	// is created disabled and forced down right after.
	if offlineFixup {
		fixup := []reconcile.Step{
			{Name: "set-offline", Do: func(ctx context.Context) error {
				return r.Client.ModifyNode(ctx, want.Name, want.Partition, want.State.TargetPair().Patch())
			}},
		}
		if err := r.Applier.Create(ctx, key, fixup); err != nil {
			return result, err
		}
	}

	if want.FQDN != "" {
		if err := r.waitFQDNResolved(ctx, want); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *Reconciler) update(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionUpdate}

	have, err := r.Client.ReadNode(ctx, want.Name, want.Partition)
	if err != nil {
		return result, fmt.Errorf("reading %s: %w", key, err)
	}

	cs, err := Diff(want, have)
	if err != nil {
		return result, err
	}
	if cs.Empty() {
		result.Action = reconcile.ActionNone
		return result, nil
	}
	result.Changed = true
	result.Fields = cs.Report()

	if err := r.Applier.Update(ctx, key, cs); err != nil {
		return result, err
	}

	// the transacted pair write alone does not reliably force a
	// monitored node down; re-assert the offline pair once the
	// transaction has landed
	if !r.Applier.DryRun && want.State == reconcile.LifecycleOffline && cs.Has("state") {
		patch := want.State.TargetPair().Patch()
		if err := r.Client.ModifyNode(ctx, want.Name, want.Partition, patch); err != nil {
			return result, fmt.Errorf("updating %s: offline fixup: %w", key, err)
		}
	}
	return result, nil
}

func (r *Reconciler) delete(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionDelete}

	changed, err := r.Applier.Delete(ctx, key, func(ctx context.Context) error {
		return r.Client.DeleteNode(ctx, want.Name, want.Partition)
	})
	if err != nil {
		return result, err
	}
	result.Changed = changed

	if changed && !r.Applier.DryRun {
		still, err := r.Client.NodeExists(ctx, want.Name, want.Partition)
		if err != nil {
			return result, fmt.Errorf("verifying %s: %w", key, err)
		}
		if still {
			return result, reconcile.Verificationf("Failed to delete the node.")
		}
	}
	return result, nil
}

// waitFQDNResolved polls until the device finishes the initial
// resolution of a freshly created FQDN node.
func (r *Reconciler) waitFQDNResolved(ctx context.Context, want Desired) error {
	poll := r.FQDNPoll
	if poll == 0 {
		poll = defaultFQDNPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		state, err := r.Client.ReadNode(ctx, want.Name, want.Partition)
		if err != nil {
			return fmt.Errorf("waiting for %q to resolve: %w", want.FQDN, err)
		}
		if state.State != bigip.StateFQDNChecking {
			return nil
		}
		log.Debug().Str("node", want.Key().FullPath()).Str("fqdn", want.FQDN).Msg("waiting for fqdn resolution")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func fqdnSettings(want Desired) *bigip.FQDNSettings {
	settings := &bigip.FQDNSettings{
		Name:          want.FQDN,
		AddressFamily: want.FQDNAddressFamily,
		AutoPopulate:  "disabled",
		DownInterval:  defaultFQDNDownInterval,
	}
	if settings.AddressFamily == "" {
		settings.AddressFamily = defaultFQDNAddressFamily
	}
	if want.FQDNAutoPopulate != nil && *want.FQDNAutoPopulate {
		settings.AutoPopulate = "enabled"
	}
	if want.FQDNDownInterval != nil {
		settings.DownInterval = *want.FQDNDownInterval
	}
	return settings
}

func creationReport(want Desired, cfg bigip.NodeConfig) map[string]any {
	fields := map[string]any{"state": string(want.State)}
	if want.FQDN != "" {
		fields["fqdn"] = want.FQDN
	} else {
		fields["address"] = cfg.Address
	}
	if cfg.Description != "" {
		fields["description"] = cfg.Description
	}
	if cfg.Monitor != "" {
		fields["monitor"] = cfg.Monitor
	}
	return fields
}
