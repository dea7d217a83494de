package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs_MatchesSentinelByKind(t *testing.T) {
	err := Declaration("registry.Register", "extension %s registered twice", "x.Ext")

	assert.ErrorIs(t, err, ErrDeclaration)
	assert.NotErrorIs(t, err, ErrCycle)

	wrapped := fmt.Errorf("building scope: %w", err)
	assert.ErrorIs(t, wrapped, ErrDeclaration)
	assert.Equal(t, KindDeclaration, KindOf(wrapped))
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestCycle_ClosesChain(t *testing.T) {
	err := Cycle("registry.Resolve", []string{"a.A", "b.B"})

	assert.Equal(t, []string{"a.A", "b.B", "a.A"}, err.Chain)
	assert.Contains(t, err.Error(), "a.A -> b.B -> a.A")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestWrap_PreservesKindAndCause(t *testing.T) {
	cause := Cycle("registry.Resolve", []string{"a.A"})
	err := Wrap("registry.Resolve", cause)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
	var fe *Error
	require.ErrorAs(t, errors.Unwrap(err), &fe)
	assert.Same(t, cause, fe)
	assert.Nil(t, Wrap("op", nil))
}

func TestStructural_MentionsMember(t *testing.T) {
	err := Structural("operator.ApplyStatic", "settings.Server.Port", "field must not be final")
	assert.Contains(t, err.Error(), "[settings.Server.Port]")
	assert.Contains(t, err.Error(), "structural contract violation")
}

func TestJoin(t *testing.T) {
	assert.NoError(t, Join("op", "validation failed", nil))

	err := Join("registry.Validate", "registry validation failed", []string{"one", "two"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeclaration)
	assert.Contains(t, err.Error(), "registry validation failed:\n- one\n- two")
}
