package isolation

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tribunal/pkg/errors"
)

func TestIsolateN_ScopesAreIndependent(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	scopes, err := isolator.IsolateN("diff contents", "acceptance criteria", 1024, 3)
	require.NoError(t, err)
	require.Len(t, scopes, 3)

	dirs := make(map[string]bool)
	for _, scope := range scopes {
		dirs[scope.Dir()] = true

		evidence, err := scope.Evidence()
		require.NoError(t, err)
		assert.Equal(t, "diff contents", evidence)
	}
	assert.Len(t, dirs, 3, "scopes must not share a storage location")
}

func TestScope_ReleaseDoesNotAffectSiblings(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	scopes, err := isolator.IsolateN("diff contents", "", 1024, 2)
	require.NoError(t, err)

	require.NoError(t, scopes[0].Release())

	// The sibling's copy is intact after the release.
	evidence, err := scopes[1].Evidence()
	require.NoError(t, err)
	assert.Equal(t, "diff contents", evidence)

	_, err = os.Stat(scopes[0].Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestScope_ReleaseIsIdempotent(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	scope, err := isolator.Isolate("diff contents", "", 1024)
	require.NoError(t, err)

	require.NoError(t, scope.Release())
	require.NoError(t, scope.Release())
	assert.True(t, scope.Released())
}

func TestScope_ReadAfterReleaseFails(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	scope, err := isolator.Isolate("diff contents", "", 1024)
	require.NoError(t, err)
	require.NoError(t, scope.Release())

	_, err = scope.Evidence()
	assert.True(t, errors.Is(err, errors.ErrScopeReleased))
}

func TestIsolate_TruncatesOversizedRequirements(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	requirements := strings.Repeat("a", 100) + strings.Repeat("b", 100)
	scope, err := isolator.Isolate("diff contents", requirements, 100)
	require.NoError(t, err)
	defer func() { _ = scope.Release() }()

	got, err := scope.Requirements()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 100), got)
	assert.NotContains(t, got, "b", "the oversized remainder must never reach a reviewer")
}

func TestScope_MissingRequirementsReadsEmpty(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	scope, err := isolator.Isolate("diff contents", "", 1024)
	require.NoError(t, err)
	defer func() { _ = scope.Release() }()

	got, err := scope.Requirements()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIsolateN_RejectsNonPositiveCount(t *testing.T) {
	isolator := NewIsolator(t.TempDir())

	_, err := isolator.IsolateN("diff contents", "", 1024, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
