package reconcile

import (
	"reflect"
	"testing"

	"github.com/dokzlo13/ltmsync/internal/bigip"
)

func TestSetDiff(t *testing.T) {
	cases := []struct {
		name        string
		want        []string
		have        []string
		protected   []string
		wantAdd     []string
		wantRemove  []string
		wantResult  []string
		wantChanged bool
	}{
		{
			name:        "equal_sets",
			want:        []string{"/Common/a", "/Common/b"},
			have:        []string{"/Common/b", "/Common/a"},
			wantResult:  []string{"/Common/a", "/Common/b"},
			wantChanged: false,
		},
		{
			name:        "add_and_remove",
			want:        []string{"/Common/a", "/Common/c"},
			have:        []string{"/Common/a", "/Common/b"},
			wantAdd:     []string{"/Common/c"},
			wantRemove:  []string{"/Common/b"},
			wantResult:  []string{"/Common/a", "/Common/c"},
			wantChanged: true,
		},
		{
			name:        "protected_member_never_removed",
			want:        []string{"/Common/http"},
			have:        []string{"/Common/tcp", "/Common/clientssl"},
			protected:   []string{"/Common/tcp"},
			wantAdd:     []string{"/Common/http"},
			wantRemove:  []string{"/Common/clientssl"},
			wantResult:  []string{"/Common/http", "/Common/tcp"},
			wantChanged: true,
		},
		{
			name:        "only_protected_remains",
			want:        []string{},
			have:        []string{"/Common/tcp"},
			protected:   []string{"/Common/tcp"},
			wantResult:  []string{"/Common/tcp"},
			wantChanged: false,
		},
		{
			name:        "manage_to_empty",
			want:        []string{},
			have:        []string{"/Common/only"},
			wantRemove:  []string{"/Common/only"},
			wantResult:  []string{},
			wantChanged: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delta, result, changed := SetDiff(tc.want, tc.have, tc.protected)
			if changed != tc.wantChanged {
				t.Errorf("changed: got %v, want %v", changed, tc.wantChanged)
			}
			if !sameMembers(delta.Add, tc.wantAdd) {
				t.Errorf("add: got %v, want %v", delta.Add, tc.wantAdd)
			}
			if !sameMembers(delta.Remove, tc.wantRemove) {
				t.Errorf("remove: got %v, want %v", delta.Remove, tc.wantRemove)
			}
			if !sameMembers(result, tc.wantResult) {
				t.Errorf("result: got %v, want %v", result, tc.wantResult)
			}

			// additions must not already be on the device, removals must
			// not be desired
			haveSet := toSet(tc.have)
			for _, name := range delta.Add {
				if haveSet[name] {
					t.Errorf("add list contains already-present member %q", name)
				}
			}
			wantSet := toSet(tc.want)
			for _, name := range delta.Remove {
				if wantSet[name] {
					t.Errorf("remove list contains desired member %q", name)
				}
			}
		})
	}
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return reflect.DeepEqual(toSet(a), toSet(b))
}

func TestRuleDiff(t *testing.T) {
	rule := func(priority int, name string) bigip.RuleRef {
		return bigip.RuleRef{Priority: priority, Name: name}
	}

	cases := []struct {
		name        string
		want        []string
		have        []bigip.RuleRef
		wantAdd     []bigip.RuleRef
		wantRemove  []bigip.RuleRef
		wantChanged bool
	}{
		{
			name:        "equal_ordered",
			want:        []string{"/Common/first", "/Common/second"},
			have:        []bigip.RuleRef{rule(0, "/Common/first"), rule(1, "/Common/second")},
			wantChanged: false,
		},
		{
			name:        "reorder_changes_priorities",
			want:        []string{"/Common/second", "/Common/first"},
			have:        []bigip.RuleRef{rule(0, "/Common/first"), rule(1, "/Common/second")},
			wantAdd:     []bigip.RuleRef{rule(0, "/Common/second"), rule(1, "/Common/first")},
			wantRemove:  []bigip.RuleRef{rule(0, "/Common/first"), rule(1, "/Common/second")},
			wantChanged: true,
		},
		{
			name:        "append_rule",
			want:        []string{"/Common/first", "/Common/second"},
			have:        []bigip.RuleRef{rule(0, "/Common/first")},
			wantAdd:     []bigip.RuleRef{rule(1, "/Common/second")},
			wantChanged: true,
		},
		{
			name:        "manage_to_empty",
			want:        []string{},
			have:        []bigip.RuleRef{rule(0, "/Common/first")},
			wantRemove:  []bigip.RuleRef{rule(0, "/Common/first")},
			wantChanged: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delta, wire, changed := RuleDiff(tc.want, tc.have)
			if changed != tc.wantChanged {
				t.Errorf("changed: got %v, want %v", changed, tc.wantChanged)
			}
			if !reflect.DeepEqual(delta.Add, tc.wantAdd) {
				t.Errorf("add: got %v, want %v", delta.Add, tc.wantAdd)
			}
			if !reflect.DeepEqual(delta.Remove, tc.wantRemove) {
				t.Errorf("remove: got %v, want %v", delta.Remove, tc.wantRemove)
			}
			if len(wire) != len(tc.want) {
				t.Fatalf("wire list: got %d entries, want %d", len(wire), len(tc.want))
			}
			for i, ref := range wire {
				if ref.Priority != i {
					t.Errorf("wire[%d].Priority = %d, want index-derived %d", i, ref.Priority, i)
				}
				if ref.Name != tc.want[i] {
					t.Errorf("wire[%d].Name = %q, want %q", i, ref.Name, tc.want[i])
				}
			}
		})
	}
}

func TestPlanVLANs(t *testing.T) {
	cases := []struct {
		name        string
		want        []string
		have        VLANState
		wantChanged bool
		wantPatch   bigip.Patch
	}{
		{
			name:        "wildcard_lifts_active_restriction",
			want:        []string{"ALL"},
			have:        VLANState{Names: []string{"/Common/vlan10"}, Enabled: true},
			wantChanged: true,
			wantPatch:   bigip.Patch{"vlans": []string{}, "vlansDisabled": true},
		},
		{
			name:        "wildcard_lowercase",
			want:        []string{"all"},
			have:        VLANState{Names: nil, Enabled: true},
			wantChanged: true,
			wantPatch:   bigip.Patch{"vlans": []string{}, "vlansDisabled": true},
		},
		{
			name:        "wildcard_already_unrestricted",
			want:        []string{"ALL"},
			have:        VLANState{},
			wantChanged: false,
		},
		{
			name:        "members_match_and_enabled",
			want:        []string{"/Common/vlan10", "/Common/vlan20"},
			have:        VLANState{Names: []string{"/Common/vlan20", "/Common/vlan10"}, Enabled: true},
			wantChanged: false,
		},
		{
			name:        "same_members_but_restriction_lifted",
			want:        []string{"/Common/vlan10"},
			have:        VLANState{Names: []string{"/Common/vlan10"}, Enabled: false},
			wantChanged: true,
			wantPatch:   bigip.Patch{"vlans": []string{"/Common/vlan10"}, "vlansEnabled": true},
		},
		{
			name:        "membership_replaced_not_merged",
			want:        []string{"/Common/vlan30"},
			have:        VLANState{Names: []string{"/Common/vlan10"}, Enabled: true},
			wantChanged: true,
			wantPatch:   bigip.Patch{"vlans": []string{"/Common/vlan30"}, "vlansEnabled": true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, changed := PlanVLANs(tc.want, tc.have)
			if changed != tc.wantChanged {
				t.Fatalf("changed: got %v, want %v", changed, tc.wantChanged)
			}
			if !changed {
				return
			}
			if !reflect.DeepEqual(plan.Patch, tc.wantPatch) {
				t.Errorf("patch: got %v, want %v", plan.Patch, tc.wantPatch)
			}
		})
	}
}
