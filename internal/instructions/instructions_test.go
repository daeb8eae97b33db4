package instructions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synccore/authcore/internal/model"
)

const setDevices model.InstructionSetType = "devices"
const setAdmin model.InstructionSetType = "admin"

type fakeInstruction struct {
	set   model.InstructionSetType
	valid bool
}

func (f fakeInstruction) ParentSet() model.InstructionSetType { return f.set }
func (f fakeInstruction) IsValid() bool                       { return f.valid }

type fakeTarget struct {
	*BaseTarget
	executed []model.TokenID
}

func newFakeTarget(set model.InstructionSetType, level model.AccessLevel) *fakeTarget {
	return &fakeTarget{BaseTarget: NewBaseTarget(set, level)}
}

func (f *fakeTarget) Execute(instruction Instruction, token model.AuthorizationToken) error {
	if err := f.Consume(token); err != nil {
		return err
	}
	f.executed = append(f.executed, token.ID)
	return nil
}

func newDispatcher() (*Dispatcher, *fakeTarget) {
	d := New([]model.InstructionSetType{setDevices, setAdmin})
	target := newFakeTarget(setDevices, model.AccessUser)
	return d, target
}

func TestRegisterTargetRejectsUnexpectedSet(t *testing.T) {
	d := New([]model.InstructionSetType{setDevices})
	target := newFakeTarget(setAdmin, model.AccessAdmin)

	err := d.RegisterTarget(target)
	require.ErrorIs(t, err, ErrSetNotExpected)
}

func TestRegisterTargetRejectsDuplicateSet(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	other := newFakeTarget(setDevices, model.AccessAdmin)
	err := d.RegisterTarget(other)
	require.ErrorIs(t, err, ErrSetAlreadyRegistered)
}

func TestProcessRejectsInvalidInstruction(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	source, err := d.RegisterSource([]model.InstructionSetType{setDevices})
	require.NoError(t, err)

	err = d.Process(source, fakeInstruction{set: setDevices, valid: false}, model.AuthorizationToken{})
	require.ErrorIs(t, err, ErrNotValid)
}

func TestProcessRejectsUnknownSource(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	err := d.Process(SourceID(999), fakeInstruction{set: setDevices, valid: true}, model.AuthorizationToken{})
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestProcessRejectsSetNotAllowedForSource(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	admin := newFakeTarget(setAdmin, model.AccessAdmin)
	require.NoError(t, d.RegisterTarget(admin))

	source, err := d.RegisterSource([]model.InstructionSetType{setDevices})
	require.NoError(t, err)

	err = d.Process(source, fakeInstruction{set: setAdmin, valid: true}, model.AuthorizationToken{})
	require.ErrorIs(t, err, ErrSetNotAllowedForSource)
}

func TestProcessRoutesToRegisteredTargetAndConsumesToken(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	source, err := d.RegisterSource([]model.InstructionSetType{setDevices})
	require.NoError(t, err)

	token := model.AuthorizationToken{
		ID:      1,
		SetType: setDevices,
		UserID:  uuid.New(),
	}
	target.PostAuthorizationToken(token)

	err = d.Process(source, fakeInstruction{set: setDevices, valid: true}, token)
	require.NoError(t, err)
	assert.Equal(t, []model.TokenID{1}, target.executed)

	// a second use of the same token id must fail — one-shot consumption.
	err = d.Process(source, fakeInstruction{set: setDevices, valid: true}, token)
	require.ErrorIs(t, err, ErrInvalidAuthorizationToken)
}

func TestMinimumAccessLevelForSet(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	level, ok := d.MinimumAccessLevelForSet(setDevices)
	require.True(t, ok)
	assert.Equal(t, model.AccessUser, level)

	_, ok = d.MinimumAccessLevelForSet(setAdmin)
	assert.False(t, ok)
}

func TestConsumeRejectsMismatchedSignature(t *testing.T) {
	target := newFakeTarget(setDevices, model.AccessUser)

	posted := model.AuthorizationToken{ID: 7, Signature: []byte("abc")}
	target.PostAuthorizationToken(posted)

	forged := model.AuthorizationToken{ID: 7, Signature: []byte("xyz")}
	err := target.Consume(forged)
	require.ErrorIs(t, err, ErrInvalidAuthorizationToken)
}

func TestThrottledDispatcherEnforcesLimit(t *testing.T) {
	d, target := newDispatcher()
	require.NoError(t, d.RegisterTarget(target))

	source, err := d.RegisterSource([]model.InstructionSetType{setDevices})
	require.NoError(t, err)

	throttled := NewThrottled(d, 0, 1) // zero refill rate, burst 1

	token := model.AuthorizationToken{ID: 1, SetType: setDevices}
	target.PostAuthorizationToken(token)
	require.NoError(t, throttled.Process(source, fakeInstruction{set: setDevices, valid: true}, token))

	// burst exhausted and refill rate is zero: the next call must be denied.
	err = throttled.Process(source, fakeInstruction{set: setDevices, valid: true}, token)
	require.ErrorIs(t, err, ErrRateLimited)
}
