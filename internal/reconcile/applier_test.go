package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/bigip/bigiptest"
)

func nodeKey(name string) Key {
	return Key{Kind: KindNode, Partition: "Common", Name: name}
}

func TestApplierCreateNamesFailedStep(t *testing.T) {
	sim := bigiptest.New()
	applier := &Applier{Client: sim}

	boom := errors.New("boom")
	steps := []Step{
		{Name: "create", Do: func(ctx context.Context) error {
			return sim.CreateNode(ctx, bigip.NodeConfig{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
		}},
		{Name: "set-offline", Do: func(ctx context.Context) error {
			return boom
		}},
	}

	err := applier.Create(context.Background(), nodeKey("web1"), steps)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), `step "set-offline"`) {
		t.Errorf("error does not name the failed step: %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error does not wrap the step failure: %v", err)
	}
	// the first step landed; partial state is reported, not rolled back
	if _, ok := sim.Node("/Common/web1"); !ok {
		t.Error("expected the created object to remain after a later step failed")
	}
}

func TestApplierCreateLostRace(t *testing.T) {
	sim := bigiptest.New()
	sim.SeedNode(bigip.NodeState{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
	applier := &Applier{Client: sim}

	steps := []Step{
		{Name: "create", Do: func(ctx context.Context) error {
			return sim.CreateNode(ctx, bigip.NodeConfig{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
		}},
	}

	err := applier.Create(context.Background(), nodeKey("web1"), steps)
	if !errors.Is(err, ErrConcurrentCreate) {
		t.Fatalf("expected ErrConcurrentCreate, got %v", err)
	}
}

func modifyNodeChange(sim *bigiptest.Sim, name string, patch bigip.Patch) ApplyFunc {
	return func(ctx context.Context, ops bigip.Ops) error {
		return ops.ModifyNode(ctx, name, "Common", patch)
	}
}

func TestApplierUpdateCommitsAllChanges(t *testing.T) {
	sim := bigiptest.New()
	sim.SeedNode(bigip.NodeState{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
	applier := &Applier{Client: sim}

	cs := &ChangeSet{}
	cs.Add("description", "backend", modifyNodeChange(sim, "web1", bigip.Patch{"description": "backend"}))
	cs.Add("monitor", "/Common/icmp", modifyNodeChange(sim, "web1", bigip.Patch{"monitor": "/Common/icmp"}))

	if err := applier.Update(context.Background(), nodeKey("web1"), cs); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	node, _ := sim.Node("/Common/web1")
	if node.Description != "backend" {
		t.Errorf("description not applied: %q", node.Description)
	}
	if node.Monitor != "/Common/icmp" {
		t.Errorf("monitor not applied: %q", node.Monitor)
	}

	var begin, commit bool
	for _, call := range sim.Calls() {
		if strings.HasPrefix(call, "Begin") {
			begin = true
		}
		if strings.HasPrefix(call, "Commit") {
			commit = true
		}
	}
	if !begin || !commit {
		t.Errorf("update was not transaction-wrapped: calls %v", sim.Calls())
	}
}

func TestApplierUpdateIsAtomic(t *testing.T) {
	sim := bigiptest.New()
	sim.SeedNode(bigip.NodeState{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
	applier := &Applier{Client: sim}

	cs := &ChangeSet{}
	cs.Add("description", "backend", modifyNodeChange(sim, "web1", bigip.Patch{"description": "backend"}))
	cs.Add("bogus", "x", modifyNodeChange(sim, "web1", bigip.Patch{"bogus": "x"}))

	err := applier.Update(context.Background(), nodeKey("web1"), cs)
	if err == nil {
		t.Fatal("expected the commit to fail")
	}
	node, _ := sim.Node("/Common/web1")
	if node.Description != "" {
		t.Errorf("partial update leaked through a failed transaction: %q", node.Description)
	}
}

func TestApplierUpdateDryRun(t *testing.T) {
	sim := bigiptest.New()
	sim.SeedNode(bigip.NodeState{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
	applier := &Applier{Client: sim, DryRun: true}

	cs := &ChangeSet{}
	cs.Add("description", "backend", modifyNodeChange(sim, "web1", bigip.Patch{"description": "backend"}))

	if err := applier.Update(context.Background(), nodeKey("web1"), cs); err != nil {
		t.Fatalf("dry-run update failed: %v", err)
	}
	if got := sim.MutatingCalls(); got != 0 {
		t.Errorf("dry run issued %d mutating calls", got)
	}
}

func TestApplierDeleteTreatsNotFoundAsUnchanged(t *testing.T) {
	sim := bigiptest.New()
	applier := &Applier{Client: sim}

	changed, err := applier.Delete(context.Background(), nodeKey("gone"), func(ctx context.Context) error {
		return sim.DeleteNode(ctx, "gone", "Common")
	})
	if err != nil {
		t.Fatalf("not-found delete must not fail: %v", err)
	}
	if changed {
		t.Error("not-found delete must report unchanged")
	}
}

func TestApplierDelete(t *testing.T) {
	sim := bigiptest.New()
	sim.SeedNode(bigip.NodeState{Name: "web1", Partition: "Common", Address: "10.0.0.1"})
	applier := &Applier{Client: sim}

	changed, err := applier.Delete(context.Background(), nodeKey("web1"), func(ctx context.Context) error {
		return sim.DeleteNode(ctx, "web1", "Common")
	})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !changed {
		t.Error("delete must report changed")
	}
	if _, ok := sim.Node("/Common/web1"); ok {
		t.Error("node still present after delete")
	}
}
