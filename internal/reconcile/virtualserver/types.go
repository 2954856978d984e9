// Package virtualserver reconciles traffic-receiving front ends: the
// listeners that accept client connections and forward them to a pool
// of nodes. Virtual servers carry the richest property surface of the
// managed kinds: attached profiles, policies, prioritized rules, a VLAN
// allow-list, source address translation and persistence settings, plus
// the route advertisement flag living on the destination's virtual
// address object.
package virtualserver

import (
	"strings"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

// ProtectedProfile is the baseline profile the device requires; it is
// never removed even when the declaration omits it.
const ProtectedProfile = "/Common/tcp"

// Desired is the declared target configuration for one virtual server.
// Nil optional fields mean "do not manage this property"; an empty list
// means "manage it to be empty".
type Desired struct {
	Name      string
	Partition string
	State     reconcile.Lifecycle

	Description *string

	// Destination and Port identify the listening endpoint. Both are
	// required when the virtual server has to be created.
	Destination string
	Port        *int

	Pool *string // the empty string detaches the pool

	Profiles []string
	Policies []string
	Rules    []string
	VLANs    []string

	SNAT                *string // none, automap, or a SNAT pool name
	DefaultPersistence  *string
	FallbackPersistence *string // the empty string clears it

	// RouteAdvertisement ("enabled" or "disabled") is applied to the
	// virtual address backing the destination.
	RouteAdvertisement *string
}

func (d Desired) Key() reconcile.Key {
	return reconcile.Key{Kind: reconcile.KindVirtualServer, Partition: d.Partition, Name: d.Name}
}

// targetAddress is the bare destination address of the desired endpoint,
// falling back to the observed one when the declaration leaves it alone.
func (d Desired) targetAddress(have *bigip.VirtualState) (string, error) {
	if d.Destination != "" {
		_, addr := bigip.SplitPath(d.Destination)
		return addr, nil
	}
	if have == nil {
		return "", nil
	}
	addr, _, err := bigip.ParseDestination(have.Destination)
	return addr, err
}

func planSNAT(want, partition string, have bigip.SourceTranslation) (bigip.SourceTranslation, bool) {
	var target bigip.SourceTranslation
	switch {
	case strings.EqualFold(want, bigip.SNATTypeNone):
		target = bigip.SourceTranslation{Type: bigip.SNATTypeNone}
	case strings.EqualFold(want, bigip.SNATTypeAutomap):
		target = bigip.SourceTranslation{Type: bigip.SNATTypeAutomap}
	default:
		target = bigip.SourceTranslation{
			Type: bigip.SNATTypePool,
			Pool: reconcile.FQName(partition, want),
		}
	}
	if target.Type != have.Type {
		return target, true
	}
	if target.Type == bigip.SNATTypePool && target.Pool != have.Pool {
		return target, true
	}
	return target, false
}

func profileRefs(names []string) []bigip.ProfileRef {
	refs := make([]bigip.ProfileRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, bigip.ProfileRef{Name: name, Context: bigip.ProfileContextAll})
	}
	return refs
}

func profileNames(refs []bigip.ProfileRef) []string {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names
}

// qualifiedVLANs qualifies concrete VLAN names while letting the
// wildcard token through untouched.
func qualifiedVLANs(partition string, names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.EqualFold(name, reconcile.VLANWildcard) {
			out = append(out, name)
			continue
		}
		out = append(out, reconcile.FQName(partition, name))
	}
	return out
}
