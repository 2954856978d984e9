package virtualserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

// Diff computes the changes turning have into want, ordered the way they
// are applied. va is the observed virtual address backing the target
// destination, nil when absent; it only matters when route advertisement
// is managed. Diff is pure: no device call is made.
func Diff(want Desired, have *bigip.VirtualState, va *bigip.VirtualAddressState) (*reconcile.ChangeSet, error) {
	cs := &reconcile.ChangeSet{}
	modify := func(patch bigip.Patch) reconcile.ApplyFunc {
		return func(ctx context.Context, ops bigip.Ops) error {
			return ops.ModifyVirtual(ctx, want.Name, want.Partition, patch)
		}
	}

	if want.Port != nil && (*want.Port < 0 || *want.Port > 65535) {
		return nil, reconcile.Validationf("valid ports must be in range 0 - 65535")
	}

	// destination and port travel as one encoded field
	if want.Destination != "" || want.Port != nil {
		haveAddr, havePort, err := bigip.ParseDestination(have.Destination)
		if err != nil {
			return nil, fmt.Errorf("parsing observed destination %q: %w", have.Destination, err)
		}
		addr, port := haveAddr, havePort
		if want.Destination != "" {
			_, addr = bigip.SplitPath(want.Destination)
		}
		if want.Port != nil {
			port = *want.Port
		}
		dest := bigip.FormatDestination(want.Partition, addr, port)
		if dest != have.Destination {
			cs.Add("destination", dest, modify(bigip.Patch{"destination": dest}))
		}
	}

	if want.Pool != nil {
		pool := reconcile.FQName(want.Partition, *want.Pool)
		if pool != have.Pool {
			cs.Add("pool", pool, modify(bigip.Patch{"pool": pool}))
		}
	}

	if want.Description != nil && *want.Description != have.Description {
		cs.Add("description", *want.Description, modify(bigip.Patch{"description": *want.Description}))
	}

	if want.SNAT != nil {
		if target, changed := planSNAT(*want.SNAT, want.Partition, have.Source); changed {
			cs.Add("snat", *want.SNAT, modify(bigip.Patch{"sourceAddressTranslation": target}))
		}
	}

	if want.Profiles != nil {
		wanted := reconcile.FQNames(want.Partition, want.Profiles)
		delta, result, changed := reconcile.SetDiff(wanted, profileNames(have.Profiles), []string{ProtectedProfile})
		if len(result) == 0 {
			return nil, reconcile.Validationf("Virtual servers must has at least one profile")
		}
		if changed {
			cs.Add("profiles", delta, modify(bigip.Patch{"profiles": profileRefs(result)}))
		}
	}

	if want.Policies != nil {
		wanted := reconcile.FQNames(want.Partition, want.Policies)
		delta, result, changed := reconcile.SetDiff(wanted, have.Policies, nil)
		if changed {
			cs.Add("policies", delta, modify(bigip.Patch{"policies": result}))
		}
	}

	if want.VLANs != nil {
		observed := reconcile.VLANState{Names: have.VLANs, Enabled: have.VLANsEnabled}
		if plan, changed := reconcile.PlanVLANs(qualifiedVLANs(want.Partition, want.VLANs), observed); changed {
			cs.Add("vlans", plan.Report, modify(plan.Patch))
		}
	}

	if want.Rules != nil {
		wanted := reconcile.FQNames(want.Partition, want.Rules)
		delta, wire, changed := reconcile.RuleDiff(wanted, have.Rules)
		if changed {
			cs.Add("rules", delta, modify(bigip.Patch{"rules": wire}))
		}
	}

	if want.DefaultPersistence != nil {
		target := reconcile.FQName(want.Partition, *want.DefaultPersistence)
		if target != defaultPersistence(have.Persistence) {
			refs := []bigip.PersistRef{}
			if target != "" {
				refs = append(refs, bigip.PersistRef{Name: target, Default: true})
			}
			cs.Add("default_persistence", target, modify(bigip.Patch{"persist": refs}))
		}
	}

	if want.FallbackPersistence != nil {
		// the empty string clears the fallback and bypasses qualification
		target := reconcile.FQName(want.Partition, *want.FallbackPersistence)
		if target != have.FallbackPersistence {
			cs.Add("fallback_persistence", target, modify(bigip.Patch{"fallbackPersistence": target}))
		}
	}

	if pair, changed := want.State.PairChange(have.Session, have.State); changed {
		cs.Add("state", string(want.State), modify(pair.Patch()))
	}

	if want.RouteAdvertisement != nil {
		addr, err := want.targetAddress(have)
		if err != nil {
			return nil, fmt.Errorf("parsing observed destination %q: %w", have.Destination, err)
		}
		target := strings.ToLower(strings.TrimSpace(*want.RouteAdvertisement))
		var current string
		if va != nil {
			current = va.RouteAdvertisement
		}
		if target != current {
			patch := bigip.Patch{"routeAdvertisement": target}
			cs.Add("route_advertisement", target, func(ctx context.Context, ops bigip.Ops) error {
				return ops.ModifyVirtualAddress(ctx, addr, want.Partition, patch)
			})
		}
	}

	return cs, nil
}

func defaultPersistence(refs []bigip.PersistRef) string {
	for _, ref := range refs {
		if ref.Default {
			return ref.Name
		}
	}
	return ""
}
