// SPDX-License-Identifier: MPL-2.0

// Package engine is a small target-based build graph. Steps declare the
// files they produce and the files they read; the engine orders them by
// those declarations, skips steps whose inputs and outputs are unchanged
// since the last run (content signatures, not timestamps), and fans
// independent steps out across a bounded worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Default name of the signature store inside the build directory.
const signatureFilename = "signatures.json"

var (
	// ErrDuplicateTarget indicates two steps declared the same target file.
	ErrDuplicateTarget = errors.New("target already declared by another step")

	// ErrUnknownTarget indicates an operation referenced a target no step
	// produces.
	ErrUnknownTarget = errors.New("no step declares this target")

	// ErrUnknownGoal indicates a requested goal is neither an alias nor a
	// declared target.
	ErrUnknownGoal = errors.New("unknown goal")
)

type (
	// DuplicateTargetError reports the step that already owns a target.
	// It wraps ErrDuplicateTarget for errors.Is() compatibility.
	DuplicateTargetError struct {
		Target   string
		Step     string
		Existing string
	}

	// UnknownTargetError reports a reference to an undeclared target.
	// It wraps ErrUnknownTarget for errors.Is() compatibility.
	UnknownTargetError struct {
		Target string
	}

	// UnknownGoalError reports a goal that resolves to nothing.
	// It wraps ErrUnknownGoal for errors.Is() compatibility.
	UnknownGoalError struct {
		Goal string
	}

	// CycleError reports steps whose source/target declarations form a
	// dependency cycle.
	CycleError struct {
		Steps []string
	}
)

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("step %q: target %s is already declared by step %q", e.Step, e.Target, e.Existing)
}

func (e *DuplicateTargetError) Unwrap() error { return ErrDuplicateTarget }

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("no step declares target %s", e.Target)
}

func (e *UnknownTargetError) Unwrap() error { return ErrUnknownTarget }

func (e *UnknownGoalError) Error() string {
	return fmt.Sprintf("goal %q is neither an alias nor a declared target", e.Goal)
}

func (e *UnknownGoalError) Unwrap() error { return ErrUnknownGoal }

func (e *CycleError) Error() string {
	return fmt.Sprintf("build steps form a dependency cycle: %s", strings.Join(e.Steps, " -> "))
}

// Action is the work a step performs. The step is passed back in so one
// function can serve several steps, reading its concrete targets and
// sources.
type Action func(ctx context.Context, step *Step) error

// Step is one declared unit of work. Targets and Sources are file paths;
// a step runs only after every step producing one of its sources has
// finished.
type Step struct {
	Name    string
	Targets []string
	Sources []string

	action Action
	posts  []Action
	always bool
}

// key identifies the step in the signature store and the scheduler. The
// first target is unique by construction.
func (s *Step) key() string { return s.Targets[0] }

// Engine accumulates step declarations and runs them. Declare everything
// first, then call Run; registration is not safe during a run.
type Engine struct {
	root     string
	buildDir string

	steps      []*Step
	byTarget   map[string]*Step
	aliases    map[string][]string
	noClean    map[string]bool
	cleanPaths map[string][]string
	sigs       *signatureStore
}

// New creates an engine. Shell actions run with root as their working
// directory; buildDir holds the signature store.
func New(root, buildDir string) *Engine {
	return &Engine{
		root:       root,
		buildDir:   buildDir,
		byTarget:   make(map[string]*Step),
		aliases:    make(map[string][]string),
		noClean:    make(map[string]bool),
		cleanPaths: make(map[string][]string),
		sigs:       newSignatureStore(filepath.Join(buildDir, signatureFilename)),
	}
}

// Command declares a step producing targets from sources. Declaring a
// target twice is an error; every target has exactly one producer.
func (e *Engine) Command(name string, targets, sources []string, action Action) (*Step, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("step %q declares no targets", name)
	}
	for _, target := range targets {
		if existing, ok := e.byTarget[target]; ok {
			return nil, &DuplicateTargetError{Target: target, Step: name, Existing: existing.Name}
		}
	}
	step := &Step{
		Name:    name,
		Targets: append([]string(nil), targets...),
		Sources: append([]string(nil), sources...),
		action:  action,
	}
	e.steps = append(e.steps, step)
	for _, target := range targets {
		e.byTarget[target] = step
	}
	return step, nil
}

// Alias exposes targets (or other aliases) under a user-facing name.
// Repeated calls extend the alias.
func (e *Engine) Alias(name string, targets ...string) {
	e.aliases[name] = append(e.aliases[name], targets...)
}

// AddPostAction appends an action that runs after the producing step's
// own action, in registration order. Post-actions share the step's
// up-to-date check: a skipped step skips its post-actions too.
func (e *Engine) AddPostAction(target string, action Action) error {
	step, ok := e.byTarget[target]
	if !ok {
		return &UnknownTargetError{Target: target}
	}
	step.posts = append(step.posts, action)
	return nil
}

// AlwaysBuild exempts the steps producing the given targets from the
// up-to-date check.
func (e *Engine) AlwaysBuild(targets ...string) error {
	for _, target := range targets {
		step, ok := e.byTarget[target]
		if !ok {
			return &UnknownTargetError{Target: target}
		}
		step.always = true
	}
	return nil
}

// NoClean keeps the given targets on disk when their goals are cleaned.
func (e *Engine) NoClean(targets ...string) error {
	for _, target := range targets {
		if _, ok := e.byTarget[target]; !ok {
			return &UnknownTargetError{Target: target}
		}
		e.noClean[target] = true
	}
	return nil
}

// CleanPaths registers extra paths removed when the step producing
// target is cleaned, for outputs the target path itself does not cover
// (staging directories, metadata trees).
func (e *Engine) CleanPaths(target string, paths ...string) error {
	if _, ok := e.byTarget[target]; !ok {
		return &UnknownTargetError{Target: target}
	}
	e.cleanPaths[target] = append(e.cleanPaths[target], paths...)
	return nil
}

// resolveGoals expands aliases and returns the steps needed to build the
// goals, dependencies included, in registration order.
func (e *Engine) resolveGoals(goals []string) ([]*Step, error) {
	include := make(map[string]bool)
	var pending []*Step

	var expand func(goal string, seen map[string]bool) error
	expand = func(goal string, seen map[string]bool) error {
		if targets, ok := e.aliases[goal]; ok {
			if seen[goal] {
				return nil
			}
			seen[goal] = true
			for _, t := range targets {
				if err := expand(t, seen); err != nil {
					return err
				}
			}
			return nil
		}
		step, ok := e.byTarget[goal]
		if !ok {
			return &UnknownGoalError{Goal: goal}
		}
		if !include[step.key()] {
			include[step.key()] = true
			pending = append(pending, step)
		}
		return nil
	}

	for _, goal := range goals {
		if err := expand(goal, make(map[string]bool)); err != nil {
			return nil, err
		}
	}

	// Pull in producers of every included step's sources, transitively.
	for len(pending) > 0 {
		step := pending[0]
		pending = pending[1:]
		for _, src := range step.Sources {
			producer, ok := e.byTarget[src]
			if !ok || include[producer.key()] {
				continue
			}
			include[producer.key()] = true
			pending = append(pending, producer)
		}
	}

	var selected []*Step
	for _, step := range e.steps {
		if include[step.key()] {
			selected = append(selected, step)
		}
	}
	return selected, nil
}
