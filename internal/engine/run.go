// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

type stepResult struct {
	step *Step
	err  error
}

// Run builds the goals. Steps whose recorded input and output signatures
// still match are skipped; the rest run across at most jobs workers,
// respecting the source/target ordering. The first failure cancels the
// remaining work.
func (e *Engine) Run(ctx context.Context, jobs int, goals ...string) error {
	steps, err := e.resolveGoals(goals)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	consumers, inDegree := e.wireEdges(steps)
	if err := checkAcyclic(steps, consumers, inDegree); err != nil {
		return err
	}

	if err := e.sigs.load(); err != nil {
		return err
	}

	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(steps) {
		jobs = len(steps)
	}

	ready := make(chan *Step, len(steps))
	done := make(chan stepResult, len(steps))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range ready {
				if runCtx.Err() != nil {
					done <- stepResult{step: step, err: runCtx.Err()}
					continue
				}
				done <- stepResult{step: step, err: e.runStep(runCtx, step)}
			}
		}()
	}

	inflight := 0
	for _, step := range steps {
		if inDegree[step.key()] == 0 {
			ready <- step
			inflight++
		}
	}

	var firstErr error
	for inflight > 0 {
		res := <-done
		inflight--
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		for _, consumer := range consumers[res.step.key()] {
			inDegree[consumer.key()]--
			if inDegree[consumer.key()] == 0 {
				ready <- consumer
				inflight++
			}
		}
	}
	close(ready)
	wg.Wait()

	if saveErr := e.sigs.save(); saveErr != nil && firstErr == nil {
		firstErr = saveErr
	}
	return firstErr
}

// runStep performs one step: skip when up to date, otherwise run the
// action and its post-actions and record fresh signatures.
func (e *Engine) runStep(ctx context.Context, step *Step) error {
	upToDate, inputs, err := e.sigs.check(step)
	if err != nil {
		return fmt.Errorf("failed to fingerprint step %q: %w", step.Name, err)
	}
	if upToDate && !step.always {
		slog.Debug("step up to date", "step", step.Name)
		return nil
	}

	slog.Debug("running step", "step", step.Name, "targets", step.Targets)
	if step.action != nil {
		if err := step.action(ctx, step); err != nil {
			return fmt.Errorf("step %q failed: %w", step.Name, err)
		}
	}
	for _, post := range step.posts {
		if err := post(ctx, step); err != nil {
			return fmt.Errorf("post-action of step %q failed: %w", step.Name, err)
		}
	}
	if err := e.sigs.commit(step, inputs); err != nil {
		return fmt.Errorf("failed to record signatures for step %q: %w", step.Name, err)
	}
	return nil
}

// wireEdges derives producer→consumer edges from declarations: a step
// consuming a file waits for the step producing it.
func (e *Engine) wireEdges(steps []*Step) (map[string][]*Step, map[string]int) {
	included := make(map[string]bool, len(steps))
	for _, step := range steps {
		included[step.key()] = true
	}

	consumers := make(map[string][]*Step, len(steps))
	inDegree := make(map[string]int, len(steps))
	for _, step := range steps {
		inDegree[step.key()] = 0
	}
	for _, step := range steps {
		for _, src := range step.Sources {
			producer, ok := e.byTarget[src]
			if !ok || !included[producer.key()] || producer == step {
				continue
			}
			consumers[producer.key()] = append(consumers[producer.key()], step)
			inDegree[step.key()]++
		}
	}
	return consumers, inDegree
}

// checkAcyclic runs Kahn's algorithm over a copy of the in-degrees and
// reports the steps left unordered as a cycle. Steps at the same level
// keep registration order, so the error is deterministic.
func checkAcyclic(steps []*Step, consumers map[string][]*Step, inDegree map[string]int) error {
	degrees := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		degrees[k] = v
	}

	var queue []*Step
	for _, step := range steps {
		if degrees[step.key()] == 0 {
			queue = append(queue, step)
		}
	}

	ordered := 0
	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]
		ordered++
		for _, consumer := range consumers[step.key()] {
			degrees[consumer.key()]--
			if degrees[consumer.key()] == 0 {
				queue = append(queue, consumer)
			}
		}
	}

	if ordered != len(steps) {
		var cycle []string
		for _, step := range steps {
			if degrees[step.key()] > 0 {
				cycle = append(cycle, step.Name)
			}
		}
		return &CycleError{Steps: cycle}
	}
	return nil
}

// Clean removes the outputs of the goals and their dependencies: every
// declared target not marked NoClean, plus any registered extra paths.
func (e *Engine) Clean(goals ...string) error {
	steps, err := e.resolveGoals(goals)
	if err != nil {
		return err
	}

	var errs []error
	for _, step := range steps {
		for _, target := range step.Targets {
			if !e.noClean[target] {
				slog.Debug("removing build output", "path", target)
				if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
					errs = append(errs, fmt.Errorf("failed to remove %s: %w", target, err))
				}
			}
			for _, extra := range e.cleanPaths[target] {
				slog.Debug("removing build output", "path", extra)
				if err := os.RemoveAll(extra); err != nil {
					errs = append(errs, fmt.Errorf("failed to remove %s: %w", extra, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}
