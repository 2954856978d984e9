package virtualserver

import (
	"testing"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

// alignedVirtual is an observed record fully matching alignedDesired.
func alignedVirtual() bigip.VirtualState {
	return bigip.VirtualState{
		Name: "vs1", Partition: "Common", FullPath: "/Common/vs1",
		Destination: "/Common/10.0.0.10:80",
		Mask:        bigip.DefaultMask,
		IPProtocol:  bigip.IPProtocolTCP,
		Pool:        "/Common/web-pool",
		Profiles: []bigip.ProfileRef{
			{Name: "/Common/tcp", Context: bigip.ProfileContextAll},
			{Name: "/Common/http", Context: bigip.ProfileContextAll},
		},
		Policies:            []string{"/Common/policy1"},
		Rules:               []bigip.RuleRef{{Priority: 0, Name: "/Common/ruleA"}},
		VLANs:               []string{"/Common/vlan10"},
		VLANsEnabled:        true,
		Source:              bigip.SourceTranslation{Type: bigip.SNATTypeAutomap},
		Persistence:         []bigip.PersistRef{{Name: "/Common/cookie", Default: true}},
		FallbackPersistence: "/Common/source_addr",
		Session:             bigip.SessionUserEnabled,
		State:               "up",
	}
}

func alignedDesired() Desired {
	return Desired{
		Name: "vs1", Partition: "Common",
		State:               reconcile.LifecycleEnabled,
		Destination:         "10.0.0.10",
		Port:                intPtr(80),
		Pool:                strPtr("web-pool"),
		Profiles:            []string{"tcp", "http"},
		Policies:            []string{"policy1"},
		Rules:               []string{"ruleA"},
		VLANs:               []string{"vlan10"},
		SNAT:                strPtr("automap"),
		DefaultPersistence:  strPtr("cookie"),
		FallbackPersistence: strPtr("source_addr"),
	}
}

func TestDiff(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(*Desired)
		have       func(*bigip.VirtualState)
		va         *bigip.VirtualAddressState
		wantFields []string
		wantErr    string
	}{
		{
			name: "aligned_virtual_produces_nothing",
		},
		{
			name:       "port_drift_rewrites_destination",
			mutate:     func(d *Desired) { d.Port = intPtr(8080) },
			wantFields: []string{"destination"},
		},
		{
			name:       "address_drift_keeps_observed_port",
			mutate:     func(d *Desired) { d.Destination = "10.0.0.20"; d.Port = nil },
			wantFields: []string{"destination"},
		},
		{
			name:   "unmanaged_destination_left_alone",
			mutate: func(d *Desired) { d.Destination = ""; d.Port = nil },
		},
		{
			name:       "pool_cleared_with_empty_sentinel",
			mutate:     func(d *Desired) { d.Pool = strPtr("") },
			wantFields: []string{"pool"},
		},
		{
			name: "protected_profile_never_removed",
			mutate: func(d *Desired) {
				d.Profiles = []string{"http"}
			},
		},
		{
			name: "unprotected_profile_removed",
			mutate: func(d *Desired) {
				d.Profiles = []string{"tcp"}
			},
			wantFields: []string{"profiles"},
		},
		{
			name:   "empty_profiles_on_unprotected_virtual_fails",
			mutate: func(d *Desired) { d.Profiles = []string{} },
			have: func(v *bigip.VirtualState) {
				v.Profiles = []bigip.ProfileRef{{Name: "/Common/http", Context: bigip.ProfileContextAll}}
			},
			wantErr: "Virtual servers must has at least one profile",
		},
		{
			name:       "vlan_wildcard_lifts_restriction",
			mutate:     func(d *Desired) { d.VLANs = []string{"ALL"} },
			wantFields: []string{"vlans"},
		},
		{
			name:   "vlan_wildcard_on_unrestricted_virtual_is_noop",
			mutate: func(d *Desired) { d.VLANs = []string{"all"} },
			have: func(v *bigip.VirtualState) {
				v.VLANs = nil
				v.VLANsEnabled = false
			},
		},
		{
			name:       "rule_reorder_is_a_change",
			mutate:     func(d *Desired) { d.Rules = []string{"ruleB", "ruleA"} },
			wantFields: []string{"rules"},
		},
		{
			name:       "snat_pool_replaces_automap",
			mutate:     func(d *Desired) { d.SNAT = strPtr("snat-pool") },
			wantFields: []string{"snat"},
		},
		{
			name:       "default_persistence_cleared",
			mutate:     func(d *Desired) { d.DefaultPersistence = strPtr("") },
			wantFields: []string{"default_persistence"},
		},
		{
			name:       "fallback_persistence_cleared",
			mutate:     func(d *Desired) { d.FallbackPersistence = strPtr("") },
			wantFields: []string{"fallback_persistence"},
		},
		{
			name:       "offline_forces_pair_rewrite",
			mutate:     func(d *Desired) { d.State = reconcile.LifecycleOffline },
			wantFields: []string{"state"},
		},
		{
			name:       "route_advertisement_enable",
			mutate:     func(d *Desired) { d.RouteAdvertisement = strPtr("enabled") },
			va:         &bigip.VirtualAddressState{RouteAdvertisement: bigip.RouteAdvertisementDisabled},
			wantFields: []string{"route_advertisement"},
		},
		{
			name:   "route_advertisement_already_enabled",
			mutate: func(d *Desired) { d.RouteAdvertisement = strPtr("Enabled") },
			va:     &bigip.VirtualAddressState{RouteAdvertisement: bigip.RouteAdvertisementEnabled},
		},
		{
			name:       "route_advertisement_without_virtual_address",
			mutate:     func(d *Desired) { d.RouteAdvertisement = strPtr("disabled") },
			wantFields: []string{"route_advertisement"},
		},
		{
			name:    "port_out_of_range",
			mutate:  func(d *Desired) { d.Port = intPtr(70000) },
			wantErr: "valid ports must be in range 0 - 65535",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := alignedDesired()
			if tc.mutate != nil {
				tc.mutate(&want)
			}
			have := alignedVirtual()
			if tc.have != nil {
				tc.have(&have)
			}

			cs, err := Diff(want, &have, tc.va)
			if tc.wantErr != "" {
				if err == nil || err.Error() != tc.wantErr {
					t.Fatalf("error: got %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cs.Len() != len(tc.wantFields) {
				t.Fatalf("changes: got %v, want fields %v", cs.Report(), tc.wantFields)
			}
			for _, field := range tc.wantFields {
				if !cs.Has(field) {
					t.Errorf("missing change for %q, got %v", field, cs.Report())
				}
			}
		})
	}
}

func TestDiffDestinationRendering(t *testing.T) {
	want := alignedDesired()
	want.Destination = "2001:db8::5"
	want.Port = intPtr(443)
	have := alignedVirtual()

	cs, err := Diff(want, &have, nil)
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	got, ok := cs.Report()["destination"]
	if !ok {
		t.Fatalf("expected a destination change, got %v", cs.Report())
	}
	if got != "/Common/2001:db8::5.443" {
		t.Errorf("destination: got %q, want %q", got, "/Common/2001:db8::5.443")
	}
}
