package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ltmsync/internal/bigip"
)

// Step is one named call in an ordered creation sequence. Failures name
// the step so a partially configured object is diagnosable.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
}

// Applier executes planned mutations against the device. With DryRun set
// it skips every mutating call while leaving planning untouched, so the
// changed verdict matches a real run.
type Applier struct {
	Client bigip.Client
	DryRun bool
}

// Create runs the steps in order, outside any transaction: object
// creation and sub-resource attachment must be observably sequenced, and
// a midway failure surfaces the failed step by name instead of rolling
// back. Losing the creation race to a concurrent actor surfaces as
// ErrConcurrentCreate so the caller can continue as an update.
func (a *Applier) Create(ctx context.Context, key Key, steps []Step) error {
	if a.DryRun {
		log.Debug().Str("resource", key.String()).Msg("dry run, skipping creation")
		return nil
	}
	for i, step := range steps {
		if err := step.Do(ctx); err != nil {
			if i == 0 && bigip.IsAlreadyExists(err) {
				log.Info().Str("resource", key.String()).Msg("lost creation race to a concurrent actor")
				return fmt.Errorf("creating %s: %w", key, ErrConcurrentCreate)
			}
			return fmt.Errorf("creating %s: step %q: %w", key, step.Name, err)
		}
		log.Debug().Str("resource", key.String()).Str("step", step.Name).Msg("creation step applied")
	}
	return nil
}

// Update stages every change through one device transaction and commits,
// so the resource is never observable with only part of the set applied.
func (a *Applier) Update(ctx context.Context, key Key, cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	if a.DryRun {
		log.Debug().Str("resource", key.String()).Int("changes", cs.Len()).Msg("dry run, skipping update")
		return nil
	}

	tx, err := a.Client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("updating %s: %w", key, err)
	}
	for _, change := range cs.Changes() {
		if err := change.Apply(ctx, tx); err != nil {
			return fmt.Errorf("updating %s: %s: %w", key, change.Field, err)
		}
		log.Debug().Str("resource", key.String()).Str("field", change.Field).Msg("change staged")
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("updating %s: commit: %w", key, err)
	}
	return nil
}

// Delete removes the resource. A not-found failure means a concurrent
// actor got there first and reports unchanged rather than an error.
func (a *Applier) Delete(ctx context.Context, key Key, del func(ctx context.Context) error) (bool, error) {
	if a.DryRun {
		log.Debug().Str("resource", key.String()).Msg("dry run, skipping delete")
		return true, nil
	}
	if err := del(ctx); err != nil {
		if bigip.IsNotFound(err) {
			log.Info().Str("resource", key.String()).Msg("already deleted by a concurrent actor")
			return false, nil
		}
		return false, fmt.Errorf("deleting %s: %w", key, err)
	}
	return true, nil
}
