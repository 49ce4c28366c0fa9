package dberr

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		io, corr, vd bool
	}{
		{"io", IO("pager.read_page", io.ErrUnexpectedEOF), true, false, false},
		{"corruption", Corruptionf("codec.decode", "reserved bits set: %#x", 0x8000), false, true, false},
		{"validation", Validationf("btree.put", "key too long: %d", 300), false, false, true},
		{"plain", io.EOF, false, false, false},
		{"nil", nil, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.io, IsIO(tt.err))
			assert.Equal(t, tt.corr, IsCorruption(tt.err))
			assert.Equal(t, tt.vd, IsValidation(tt.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, IO("op", nil))
	assert.NoError(t, Corruption("op", nil))
	assert.NoError(t, Validation("op", nil))
}

func TestUnwrapKeepsCause(t *testing.T) {
	err := IO("pager.sync", io.ErrClosedPipe)
	assert.True(t, errors.Is(err, io.ErrClosedPipe))

	wrapped := errors.Wrap(err, "put")
	assert.True(t, IsIO(wrapped))
	assert.Equal(t, KindIO, KindOf(wrapped))
	assert.Contains(t, err.Error(), "pager.sync")
	assert.Contains(t, err.Error(), "io")
}
