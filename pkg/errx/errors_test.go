package errx

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WrappingAndKinds(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(KindTimeout, cause, "operation budget exceeded")

	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindValidation))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestKindOf_UnclassifiedError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsKind_SeesThroughWrapping(t *testing.T) {
	inner := New(KindValidation, "query must not be empty")
	outer := fmt.Errorf("processing: %w", inner)

	assert.True(t, IsKind(outer, KindValidation))
}

func TestNewTimeout_TagsOperationAndElapsed(t *testing.T) {
	err := NewTimeout("retrieval query", 5*time.Second)

	require.True(t, IsKind(err, KindTimeout))
	assert.Contains(t, err.Error(), "retrieval query")
	assert.Contains(t, err.Error(), "5s")
}

func TestIsCritical(t *testing.T) {
	assert.True(t, IsCritical(New(KindCritical, "halt everything")))
	assert.False(t, IsCritical(New(KindTimeout, "slow")))
	assert.False(t, IsCritical(nil))
}

func TestNewf(t *testing.T) {
	err := Newf(KindUnknownAgentType, "no factory for %q", "writer")
	assert.Contains(t, err.Error(), `"writer"`)
	assert.True(t, IsKind(err, KindUnknownAgentType))
}
