package node

import (
	"testing"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func TestDiff(t *testing.T) {
	cases := []struct {
		name       string
		want       Desired
		have       bigip.NodeState
		wantFields []string
		wantErr    string
	}{
		{
			name: "aligned_node_produces_nothing",
			want: Desired{
				Name: "web1", Partition: "Common", State: reconcile.LifecycleEnabled,
				Description: strPtr("backend"),
				MonitorType: reconcile.MonitorAndList,
				Monitors:    []string{"icmp"},
			},
			have: bigip.NodeState{
				Description: "backend",
				Monitor:     "/Common/icmp",
				Session:     bigip.SessionUserEnabled,
				State:       "unchecked",
			},
		},
		{
			name: "description_drift",
			want: Desired{
				Name: "web1", Partition: "Common", State: reconcile.LifecycleEnabled,
				Description: strPtr("backend"),
			},
			have: bigip.NodeState{
				Description: "old text",
				Session:     bigip.SessionUserEnabled,
				State:       "unchecked",
			},
			wantFields: []string{"description"},
		},
		{
			name: "unmanaged_description_left_alone",
			want: Desired{
				Name: "web1", Partition: "Common", State: reconcile.LifecycleEnabled,
			},
			have: bigip.NodeState{
				Description: "kept",
				Session:     bigip.SessionUserEnabled,
				State:       "unchecked",
			},
		},
		{
			name: "monitor_list_change_inherits_observed_type",
			want: Desired{
				Name: "web1", Partition: "Common", State: reconcile.LifecycleEnabled,
				Monitors: []string{"https", "tcp"},
			},
			have: bigip.NodeState{
				Monitor: "min 1 of { /Common/icmp }",
				Session: bigip.SessionUserEnabled,
				State:   "up",
			},
			wantFields: []string{"monitor"},
		},
		{
			name: "disable_running_node",
			want: Desired{
				Name: "web1", Partition: "Common", State: reconcile.LifecycleDisabled,
			},
			have: bigip.NodeState{
				Session: bigip.SessionUserEnabled,
				State:   "up",
			},
			wantFields: []string{"state"},
		},
		{
			name: "m_of_n_without_quorum_anywhere",
			want: Desired{
				Name: "web1", Partition: "Common", State: reconcile.LifecycleEnabled,
				MonitorType: reconcile.MonitorMOfN,
				Monitors:    []string{"icmp"},
			},
			have: bigip.NodeState{
				Session: bigip.SessionUserEnabled,
				State:   "unchecked",
			},
			wantErr: "Quorum value must be specified with monitor_type 'm_of_n'.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs, err := Diff(tc.want, &tc.have)
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

func TestDiffMonitorRendering(t *testing.T) {
	want := Desired{
		Name: "web1", Partition: "Common", State: reconcile.LifecycleEnabled,
		MonitorType: reconcile.MonitorMOfN,
		Quorum:      intPtr(2),
		Monitors:    []string{"icmp", "tcp", "https"},
	}
	have := bigip.NodeState{
		Monitor: "/Common/icmp and /Common/tcp",
		Session: bigip.SessionUserEnabled,
		State:   "up",
	}

	cs, err := Diff(want, &have)
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	report := cs.Report()
	got, ok := report["monitor"]
	if !ok {
		t.Fatalf("expected a monitor change, got %v", report)
	}
	wantExpr := "min 2 of { /Common/icmp /Common/tcp /Common/https }"
	if got != wantExpr {
		t.Errorf("monitor expression: got %q, want %q", got, wantExpr)
	}
}
