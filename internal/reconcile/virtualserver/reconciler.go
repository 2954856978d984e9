package virtualserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

// Reconciler drives one virtual server toward its declaration.
type Reconciler struct {
	Client  bigip.Client
	Applier *reconcile.Applier
}

// Reconcile runs one pass: existence check, then create, update or
// delete as the declaration demands.
func (r *Reconciler) Reconcile(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionNone}

	if want.Port != nil && (*want.Port < 0 || *want.Port > 65535) {
		return result, reconcile.Validationf("valid ports must be in range 0 - 65535")
	}

	exists, err := r.Client.VirtualExists(ctx, want.Name, want.Partition)
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

	if want.Destination == "" || want.Port == nil {
		return result, reconcile.Validationf("both destination and port must be supplied to create a VS")
	}

	_, addr := bigip.SplitPath(want.Destination)
	dest := bigip.FormatDestination(want.Partition, addr, *want.Port)

	pair, offlineFixup := want.State.CreationPair()
	cfg := bigip.VirtualConfig{
		Name:        want.Name,
		Partition:   want.Partition,
		Destination: dest,
		Profiles:    profileRefs(reconcile.FQNames(want.Partition, want.Profiles)),
		Session:     pair.Session,
		State:       pair.State,
	}
	if len(cfg.Profiles) == 0 {
		// the device refuses a profile-less virtual server
		cfg.Profiles = []bigip.ProfileRef{{Name: ProtectedProfile, Context: bigip.ProfileContextAll}}
	}
	if want.Pool != nil && *want.Pool != "" {
		cfg.Pool = reconcile.FQName(want.Partition, *want.Pool)
	}
	if want.Description != nil {
		cfg.Description = *want.Description
	}

	modify := func(patch bigip.Patch) func(context.Context) error {
		return func(ctx context.Context) error {
			return r.Client.ModifyVirtual(ctx, want.Name, want.Partition, patch)
		}
	}

	steps := []reconcile.Step{
		{Name: "create", Do: func(ctx context.Context) error {
			return r.Client.CreateVirtual(ctx, cfg)
		}},
	}
	if len(want.Policies) > 0 {
		policies := reconcile.FQNames(want.Partition, want.Policies)
		steps = append(steps, reconcile.Step{Name: "attach-policies", Do: modify(bigip.Patch{"policies": policies})})
	}
	if len(want.VLANs) > 0 {
		// a fresh virtual server is unrestricted, so the wildcard needs
		// no call at all
		if plan, changed := reconcile.PlanVLANs(qualifiedVLANs(want.Partition, want.VLANs), reconcile.VLANState{}); changed {
			steps = append(steps, reconcile.Step{Name: "set-vlans", Do: modify(plan.Patch)})
		}
	}
	if len(want.Rules) > 0 {
		_, wire, _ := reconcile.RuleDiff(reconcile.FQNames(want.Partition, want.Rules), nil)
		steps = append(steps, reconcile.Step{Name: "attach-rules", Do: modify(bigip.Patch{"rules": wire})})
	}
	if want.SNAT != nil && *want.SNAT != "" {
		fresh := bigip.SourceTranslation{Type: bigip.SNATTypeNone}
		if target, changed := planSNAT(*want.SNAT, want.Partition, fresh); changed {
			steps = append(steps, reconcile.Step{Name: "set-snat", Do: modify(bigip.Patch{"sourceAddressTranslation": target})})
		}
	}
	if want.DefaultPersistence != nil && *want.DefaultPersistence != "" {
		refs := []bigip.PersistRef{{Name: reconcile.FQName(want.Partition, *want.DefaultPersistence), Default: true}}
		steps = append(steps, reconcile.Step{Name: "set-default-persistence", Do: modify(bigip.Patch{"persist": refs})})
	}
	if want.FallbackPersistence != nil && *want.FallbackPersistence != "" {
		fallback := reconcile.FQName(want.Partition, *want.FallbackPersistence)
		steps = append(steps, reconcile.Step{Name: "set-fallback-persistence", Do: modify(bigip.Patch{"fallbackPersistence": fallback})})
	}
	if offlineFixup {
		// user-down cannot be expressed at creation time
		steps = append(steps, reconcile.Step{Name: "set-offline", Do: modify(want.State.TargetPair().Patch())})
	}
	if want.RouteAdvertisement != nil && *want.RouteAdvertisement != "" {
		target := strings.ToLower(strings.TrimSpace(*want.RouteAdvertisement))
		if target != bigip.RouteAdvertisementDisabled {
			patch := bigip.Patch{"routeAdvertisement": target}
			steps = append(steps, reconcile.Step{Name: "set-route-advertisement", Do: func(ctx context.Context) error {
				return r.Client.ModifyVirtualAddress(ctx, addr, want.Partition, patch)
			}})
		}
	}

	result.Changed = true
	result.Fields = creationReport(want, cfg)

	if err := r.Applier.Create(ctx, key, steps); err != nil {
		return result, err
	}
	if r.Applier.DryRun {
		return result, nil
	}

	exists, err := r.Client.VirtualExists(ctx, want.Name, want.Partition)
	if err != nil {
		return result, fmt.Errorf("verifying %s: %w", key, err)
	}
	if !exists {
		return result, reconcile.Verificationf("Failed to create the virtual server")
	}
	return result, nil
}

func (r *Reconciler) update(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionUpdate}

	have, err := r.Client.ReadVirtual(ctx, want.Name, want.Partition)
	if err != nil {
		return result, fmt.Errorf("reading %s: %w", key, err)
	}

	// the virtual address only matters when route advertisement is
	// managed; it may not exist yet when the destination is changing too
	var va *bigip.VirtualAddressState
	if want.RouteAdvertisement != nil {
		addr, err := want.targetAddress(have)
		if err != nil {
			return result, fmt.Errorf("reading %s: parsing destination %q: %w", key, have.Destination, err)
		}
		va, err = r.Client.ReadVirtualAddress(ctx, addr, want.Partition)
		if err != nil {
			if !bigip.IsNotFound(err) {
				return result, fmt.Errorf("reading virtual address for %s: %w", key, err)
			}
			va = nil
		}
	}

	cs, err := Diff(want, have, va)
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
	// monitored virtual server down; re-assert the offline pair once
	// the transaction has landed
	if !r.Applier.DryRun && want.State == reconcile.LifecycleOffline && cs.Has("state") {
		patch := want.State.TargetPair().Patch()
		if err := r.Client.ModifyVirtual(ctx, want.Name, want.Partition, patch); err != nil {
			return result, fmt.Errorf("updating %s: offline fixup: %w", key, err)
		}
	}
	return result, nil
}

func (r *Reconciler) delete(ctx context.Context, want Desired) (reconcile.Result, error) {
	key := want.Key()
	result := reconcile.Result{Key: key, Action: reconcile.ActionDelete}

	changed, err := r.Applier.Delete(ctx, key, func(ctx context.Context) error {
		return r.Client.DeleteVirtual(ctx, want.Name, want.Partition)
	})
	if err != nil {
		return result, err
	}
	result.Changed = changed

	if changed && !r.Applier.DryRun {
		still, err := r.Client.VirtualExists(ctx, want.Name, want.Partition)
		if err != nil {
			return result, fmt.Errorf("verifying %s: %w", key, err)
		}
		if still {
			return result, reconcile.Verificationf("Failed to delete the virtual server.")
		}
	}
	return result, nil
}

func creationReport(want Desired, cfg bigip.VirtualConfig) map[string]any {
	fields := map[string]any{
		"destination": cfg.Destination,
		"state":       string(want.State),
	}
	if cfg.Pool != "" {
		fields["pool"] = cfg.Pool
	}
	if cfg.Description != "" {
		fields["description"] = cfg.Description
	}
	if len(want.Profiles) > 0 {
		fields["profiles"] = reconcile.FQNames(want.Partition, want.Profiles)
	}
	if len(want.Policies) > 0 {
		fields["policies"] = reconcile.FQNames(want.Partition, want.Policies)
	}
	if len(want.VLANs) > 0 {
		fields["vlans"] = want.VLANs
	}
	if len(want.Rules) > 0 {
		fields["rules"] = reconcile.FQNames(want.Partition, want.Rules)
	}
	if want.SNAT != nil && *want.SNAT != "" {
		fields["snat"] = *want.SNAT
	}
	if want.DefaultPersistence != nil && *want.DefaultPersistence != "" {
		fields["default_persistence"] = *want.DefaultPersistence
	}
	if want.FallbackPersistence != nil && *want.FallbackPersistence != "" {
		fields["fallback_persistence"] = *want.FallbackPersistence
	}
	if want.RouteAdvertisement != nil && *want.RouteAdvertisement != "" {
		fields["route_advertisement"] = *want.RouteAdvertisement
	}
	return fields
}
