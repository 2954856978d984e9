package watch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/ltmsync/internal/bigip/bigiptest"
	"github.com/dokzlo13/ltmsync/internal/declaration"
	"github.com/dokzlo13/ltmsync/internal/journal"
	"github.com/dokzlo13/ltmsync/internal/reconcile/node"
	"github.com/dokzlo13/ltmsync/internal/reconcile/virtualserver"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func intPtr(i int) *int { return &i }

func sampleResolved() *declaration.Resolved {
	return &declaration.Resolved{
		Nodes: []node.Desired{
			{Name: "web1", Partition: "Common", Address: "192.0.2.10"},
		},
		VirtualServers: []virtualserver.Desired{
			{Name: "vs1", Partition: "Common", Destination: "10.0.0.10", Port: intPtr(80)},
		},
	}
}

func TestPassConvergesDeclaration(t *testing.T) {
	sim := bigiptest.New()
	jrnl := openTestJournal(t)
	runner := NewRunner(sim, jrnl, Options{RateLimitRPS: 1000})

	summary, err := runner.Pass(context.Background(), sampleResolved())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Resources != 2 || summary.Changed != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 2 resources all changed", summary)
	}

	if _, ok := sim.Node("/Common/web1"); !ok {
		t.Error("node was not created")
	}
	if _, ok := sim.Virtual("/Common/vs1"); !ok {
		t.Error("virtual server was not created")
	}

	entries, err := jrnl.ByRun(summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal holds %d entries for the run, want 2", len(entries))
	}
	if entries[0].Kind != "node" || entries[0].Key != "/Common/web1" || entries[0].Action != "create" || !entries[0].Changed {
		t.Errorf("node entry mismatch: %+v", entries[0])
	}
	if entries[1].Kind != "virtual-server" || entries[1].Key != "/Common/vs1" || entries[1].Action != "create" {
		t.Errorf("virtual server entry mismatch: %+v", entries[1])
	}

	// a second pass converges nothing
	summary, err = runner.Pass(context.Background(), sampleResolved())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Changed != 0 || summary.Failed != 0 {
		t.Fatalf("second pass summary = %+v, want no changes", summary)
	}
}

func TestPassRecordsFailuresAndContinues(t *testing.T) {
	sim := bigiptest.New()
	jrnl := openTestJournal(t)
	runner := NewRunner(sim, jrnl, Options{RateLimitRPS: 1000})

	res := &declaration.Resolved{
		Nodes: []node.Desired{
			{Name: "broken", Partition: "Common"}, // no address, no fqdn
			{Name: "web1", Partition: "Common", Address: "192.0.2.10"},
		},
	}

	summary, err := runner.Pass(context.Background(), res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 || summary.Changed != 1 {
		t.Fatalf("summary = %+v, want one failure and one change", summary)
	}

	if _, ok := sim.Node("/Common/web1"); !ok {
		t.Error("failure of an earlier resource must not stop the pass")
	}

	entries, err := jrnl.ByRun(summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal holds %d entries, want 2", len(entries))
	}
	if entries[0].Error == "" {
		t.Error("failed pass should record the error text")
	}
	if entries[1].Error != "" {
		t.Errorf("successful pass recorded error %q", entries[1].Error)
	}
}

func TestPassDryRunTouchesNothing(t *testing.T) {
	sim := bigiptest.New()
	jrnl := openTestJournal(t)
	runner := NewRunner(sim, jrnl, Options{RateLimitRPS: 1000, DryRun: true})

	summary, err := runner.Pass(context.Background(), sampleResolved())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Changed != 2 {
		t.Fatalf("dry run must report the same verdict, got %+v", summary)
	}
	if calls := sim.MutatingCalls(); calls != 0 {
		t.Fatalf("dry run issued %d mutating calls", calls)
	}

	entries, err := jrnl.ByRun(summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if !e.DryRun {
			t.Errorf("entry %s not marked dry-run", e.Key)
		}
	}
}

func TestPassWithoutJournal(t *testing.T) {
	sim := bigiptest.New()
	runner := NewRunner(sim, nil, Options{RateLimitRPS: 1000})

	summary, err := runner.Pass(context.Background(), sampleResolved())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Changed != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sim := bigiptest.New()
	runner := NewRunner(sim, nil, Options{Interval: time.Hour, RateLimitRPS: 1000})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := runner.Run(ctx, sampleResolved()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// the immediate first pass ran before the cancellation
	if _, ok := sim.Node("/Common/web1"); !ok {
		t.Error("first pass did not run")
	}
}
