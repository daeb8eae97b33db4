// Package instructions implements the instruction dispatcher (spec §4.5,
// component C5) and the target contract every securable backend
// component must satisfy (spec §4.7, component C7).
package instructions

import (
	"fmt"
	"sync"

	"github.com/synccore/authcore/internal/model"
)

// SourceID identifies a registered instruction source.
type SourceID uint64

// Instruction is the minimal contract spec §6.2 puts on every dispatched
// instruction: a self-check and the set it belongs to. Application code
// defines concrete instruction types satisfying this — the catalogue of
// set types and instruction variants is deliberately not fixed here.
type Instruction interface {
	ParentSet() model.InstructionSetType
	IsValid() bool
}

// Target is spec §4.5/§4.7's combined contract: a registered target
// knows its own set type and accepts instructions paired with a
// one-shot AuthorizationToken it must verify and consume exactly once.
type Target interface {
	SetType() model.InstructionSetType
	MinimumAccessLevel() model.AccessLevel
	Execute(instruction Instruction, token model.AuthorizationToken) error
}

var (
	// ErrNotValid mirrors the C++ original's isValid() self-check failure.
	ErrNotValid = fmt.Errorf("instructions: instruction failed its own validity check")
	// ErrUnknownSource is returned when the source id was never registered.
	ErrUnknownSource = fmt.Errorf("instructions: unknown source")
	// ErrSetNotAllowedForSource is spec §4.5 step 3's rejection.
	ErrSetNotAllowedForSource = fmt.Errorf("instructions: source is not permitted to emit this instruction set")
	// ErrNoTargetForSet is returned when no target has registered for the
	// instruction's parent set.
	ErrNoTargetForSet = fmt.Errorf("instructions: no target registered for set")
	// ErrSetAlreadyRegistered mirrors spec §4.5 "at most one target per set_type."
	ErrSetAlreadyRegistered = fmt.Errorf("instructions: a target is already registered for this set")
	// ErrSetNotExpected is returned when a target or source declares a set
	// type the dispatcher was not configured to expect.
	ErrSetNotExpected = fmt.Errorf("instructions: set type is not in the dispatcher's expected set types")
)

// Dispatcher routes validated instructions from registered sources to
// registered targets (spec §4.5). Registration is single-threaded and
// must precede any processing; Process itself is safe for concurrent use
// once registration is done, matching the original's "Note #1 / Note #2"
// split.
type Dispatcher struct {
	expected map[model.InstructionSetType]struct{}

	mu      sync.RWMutex
	targets map[model.InstructionSetType]Target
	nextID  SourceID
	sources map[SourceID]map[model.InstructionSetType]struct{}
}

// New constructs a Dispatcher that will only accept registrations and
// instructions for the given set types (spec §4.5 expected_set_types).
func New(expectedSetTypes []model.InstructionSetType) *Dispatcher {
	expected := make(map[model.InstructionSetType]struct{}, len(expectedSetTypes))
	for _, t := range expectedSetTypes {
		expected[t] = struct{}{}
	}

	return &Dispatcher{
		expected: expected,
		targets:  make(map[model.InstructionSetType]Target),
		sources:  make(map[SourceID]map[model.InstructionSetType]struct{}),
	}
}

// RegisterTarget installs target for its declared set type. At most one
// target per set type (spec §4.5).
func (d *Dispatcher) RegisterTarget(target Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	setType := target.SetType()

	if _, ok := d.expected[setType]; !ok {
		return fmt.Errorf("%w: %s", ErrSetNotExpected, setType)
	}

	if _, exists := d.targets[setType]; exists {
		return fmt.Errorf("%w: %s", ErrSetAlreadyRegistered, setType)
	}

	d.targets[setType] = target
	return nil
}

// DeregisterTarget removes the target registered for setType, if any.
func (d *Dispatcher) DeregisterTarget(setType model.InstructionSetType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, setType)
}

// RegisterSource declares a new emitter of instructions for the given set
// types, all of which must be among the dispatcher's expected set types.
// Returns the SourceID the caller must pass to Process for every
// instruction it emits from now on.
func (d *Dispatcher) RegisterSource(setTypes []model.InstructionSetType) (SourceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(setTypes) == 0 {
		return 0, fmt.Errorf("instructions: source must declare at least one set type")
	}

	allowed := make(map[model.InstructionSetType]struct{}, len(setTypes))
	for _, t := range setTypes {
		if _, ok := d.expected[t]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrSetNotExpected, t)
		}
		allowed[t] = struct{}{}
	}

	d.nextID++
	id := d.nextID
	d.sources[id] = allowed
	return id, nil
}

// MinimumAccessLevelForSet reports the access level a target registered
// this set type with. It only reads the targets map, under the
// dispatcher's read lock, so concurrent lookups do not block each other.
func (d *Dispatcher) MinimumAccessLevelForSet(setType model.InstructionSetType) (model.AccessLevel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	target, ok := d.targets[setType]
	if !ok {
		return model.AccessNone, false
	}
	return target.MinimumAccessLevel(), true
}

// Process routes instruction from source to whichever target registered
// its parent set (spec §4.5's four-step algorithm). The dispatcher does
// not authorize — the caller must already hold an AuthorizationToken
// obtained from the security core; the target verifies it (spec §4.7).
func (d *Dispatcher) Process(source SourceID, instruction Instruction, token model.AuthorizationToken) error {
	if !instruction.IsValid() {
		return ErrNotValid
	}

	d.mu.RLock()
	allowed, knownSource := d.sources[source]
	defer d.mu.RUnlock()

	if !knownSource {
		return ErrUnknownSource
	}

	setType := instruction.ParentSet()
	if _, ok := allowed[setType]; !ok {
		return fmt.Errorf("%w: set %s", ErrSetNotAllowedForSource, setType)
	}

	target, ok := d.targets[setType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTargetForSet, setType)
	}

	return target.Execute(instruction, token)
}
