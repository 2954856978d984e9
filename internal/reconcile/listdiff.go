package reconcile

import (
	"strings"

	"github.com/dokzlo13/ltmsync/internal/bigip"
)

// ListDelta reports the membership changes a list property needs.
type ListDelta struct {
	Add    []string
	Remove []string
}

func (d ListDelta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// SetDiff diffs unordered membership lists. Protected members stay on
// the device even when absent from want. It returns the delta, the
// resulting membership to transmit, and whether the result differs from
// have.
func SetDiff(want, have, protected []string) (ListDelta, []string, bool) {
	wantSet := toSet(want)
	haveSet := toSet(have)
	protectedSet := toSet(protected)

	var delta ListDelta
	for _, name := range want {
		if !haveSet[name] {
			delta.Add = append(delta.Add, name)
		}
	}
	result := append([]string(nil), want...)
	for _, name := range have {
		if wantSet[name] {
			continue
		}
		if protectedSet[name] {
			result = append(result, name)
			continue
		}
		delta.Remove = append(delta.Remove, name)
	}
	return delta, result, !delta.Empty()
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// RuleDelta reports prioritized rule changes. Priorities derive from
// position in the desired ordered list, never from caller input.
type RuleDelta struct {
	Add    []bigip.RuleRef
	Remove []bigip.RuleRef
}

func (d RuleDelta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// RuleDiff diffs prioritized (priority, name) pairs. A desired item
// differs from an observed one if either component differs. It returns
// the delta, the full desired ordered list to transmit, and whether
// anything differs.
func RuleDiff(want []string, have []bigip.RuleRef) (RuleDelta, []bigip.RuleRef, bool) {
	wantRefs := make([]bigip.RuleRef, 0, len(want))
	for i, name := range want {
		wantRefs = append(wantRefs, bigip.RuleRef{Priority: i, Name: name})
	}
	wantSet := make(map[bigip.RuleRef]bool, len(wantRefs))
	for _, ref := range wantRefs {
		wantSet[ref] = true
	}
	haveSet := make(map[bigip.RuleRef]bool, len(have))
	for _, ref := range have {
		haveSet[ref] = true
	}

	var delta RuleDelta
	for _, ref := range wantRefs {
		if !haveSet[ref] {
			delta.Add = append(delta.Add, ref)
		}
	}
	for _, ref := range have {
		if !wantSet[ref] {
			delta.Remove = append(delta.Remove, ref)
		}
	}
	return delta, wantRefs, !delta.Empty()
}

// VLANWildcard, declared as the sole membership, lifts the VLAN
// allow-list restriction entirely.
const VLANWildcard = "ALL"

// VLANState is the observed allow-list restriction on a virtual server.
type VLANState struct {
	Names   []string
	Enabled bool
}

// VLANPlan is the mutation realizing a desired VLAN allow-list.
type VLANPlan struct {
	Patch  bigip.Patch
	Report any
}

// PlanVLANs plans the allow-list mutation. The wildcard token, matched
// case-insensitively, emits a single disable-the-restriction mutation
// when the device currently restricts. A concrete list replaces the
// device's membership outright, re-enabling the restriction when the
// device had it lifted.
func PlanVLANs(want []string, have VLANState) (VLANPlan, bool) {
	for _, name := range want {
		if strings.EqualFold(name, VLANWildcard) {
			if len(have.Names) > 0 || have.Enabled {
				return VLANPlan{
					Patch:  bigip.Patch{"vlans": []string{}, "vlansDisabled": true},
					Report: VLANWildcard,
				}, true
			}
			return VLANPlan{}, false
		}
	}

	delta, result, changed := SetDiff(want, have.Names, nil)
	if !changed && have.Enabled {
		return VLANPlan{}, false
	}
	return VLANPlan{
		Patch:  bigip.Patch{"vlans": result, "vlansEnabled": true},
		Report: delta,
	}, true
}
