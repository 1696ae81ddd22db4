package ckerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorImplementsErrorInterface(t *testing.T) {
	e := New(KindIO, "file not found", nil)
	assert.Equal(t, "[Io] file not found", e.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(KindIO, cause)
	assert.Same(t, cause, e.Unwrap())
}

func TestIsMatchesByKind(t *testing.T) {
	e := New(KindInvalidQuery, "empty query", nil)
	assert.True(t, errors.Is(e, New(KindInvalidQuery, "", nil)))
	assert.False(t, errors.Is(e, New(KindIO, "", nil)))
}

func TestCancelledIsNeverTreatedAsOtherKind(t *testing.T) {
	e := New(KindCancelled, "context cancelled", nil)
	assert.True(t, Cancelled(e))
	assert.False(t, Cancelled(New(KindInternal, "x", nil)))
}

func TestExitCodePartitioning(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitCancelled, ExitCode(New(KindCancelled, "", nil)))
	assert.Equal(t, ExitInvalidQuery, ExitCode(New(KindInvalidQuery, "", nil)))
	assert.Equal(t, ExitIndexMissing, ExitCode(New(KindIndexCorruption, "", nil)))
	assert.Equal(t, ExitInternal, ExitCode(New(KindInternal, "", nil)))
}

func TestWithDetailAndSuggestionChain(t *testing.T) {
	e := New(KindParse, "bad syntax", nil).WithDetail("file", "a.go").WithSuggestion("check line 10")
	assert.Equal(t, "a.go", e.Details["file"])
	assert.Equal(t, "check line 10", e.Suggestion)
}
