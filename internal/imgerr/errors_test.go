package imgerr

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"invalid", Invalid("factor %v out of range", 3), KindInvalidParameter},
		{"unsupported", Unsupported("teleport"), KindUnsupportedOperation},
		{"decode", Decode(fmt.Errorf("bad header")), KindDecodeFailure},
		{"transform", Transform("blur", fmt.Errorf("boom")), KindTransformFailure},
		{"stitching", ErrStitchingFailed, KindTransformFailure},
		{"encode", Encodef("no %s", "cmyk"), KindEncodeFailure},
		{"plain", fmt.Errorf("plain"), ""},
		{"wrapped with fmt", fmt.Errorf("ctx: %w", Invalid("x")), KindInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestTransformKeepsExistingKind(t *testing.T) {
	err := Transform("crop", Invalid("left"))
	assert.Equal(t, KindInvalidParameter, KindOf(err))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Status(Invalid("x")))
	assert.Equal(t, http.StatusBadRequest, Status(Unsupported("x")))
	assert.Equal(t, http.StatusUnprocessableEntity, Status(Decode(fmt.Errorf("x"))))
	assert.Equal(t, http.StatusInternalServerError, Status(ErrStitchingFailed))
	assert.Equal(t, http.StatusInternalServerError, Status(fmt.Errorf("unknown")))
}

func TestNewFailureClassifiesBareErrors(t *testing.T) {
	f := NewFailure(3, fmt.Errorf("disk on fire"))
	assert.Equal(t, 3, f.Index)
	assert.Equal(t, KindTransformFailure, f.Kind)
	assert.Contains(t, f.Message, "disk on fire")
	assert.Contains(t, f.Error(), "item 3")
}

func TestFromPanic(t *testing.T) {
	err := FromPanic("sepia", "index out of range")
	assert.Equal(t, KindTransformFailure, KindOf(err))
	assert.Contains(t, err.Error(), "sepia panicked")
}

func TestAborted(t *testing.T) {
	err := Aborted("blur", context.DeadlineExceeded)
	assert.Equal(t, KindTransformFailure, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "blur: context deadline exceeded", err.Error())

	assert.Nil(t, Aborted("blur", nil))
	invalid := Invalid("x")
	assert.Equal(t, invalid, Aborted("blur", invalid))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(Invalid("x")))
	assert.True(t, IsClientError(Decode(fmt.Errorf("x"))))
	assert.False(t, IsClientError(Transformf("x")))
	assert.False(t, IsClientError(nil))
}
