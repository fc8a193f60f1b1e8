package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/cired/directory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{Resource: "origin", ID: "askHAL"}
		assert.Equal(t, "origin with ID askHAL not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		wrapped := errors.Join(errors.New("failed"), pkgerrors.NewNotFoundError("origin", "x"))
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("exclusion_mode", "keep", "must be drop or passthrough")
		assert.Equal(t, "validation failed for field exclusion_mode: must be drop or passthrough", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid configuration"}
		assert.Equal(t, "validation failed: invalid configuration", err.Error())
	})
}

func TestFormatError(t *testing.T) {
	t.Run("with origin", func(t *testing.T) {
		err := pkgerrors.NewFormatError("askHAL", 12, "unterminated record")
		assert.Equal(t, "format error in askHAL at line 12: unterminated record", err.Error())
		assert.True(t, pkgerrors.IsFormat(err))
		assert.False(t, pkgerrors.IsIO(err))
	})

	t.Run("without origin", func(t *testing.T) {
		err := pkgerrors.NewFormatError("", 3, "missing ':'")
		assert.Equal(t, "format error at line 3: missing ':'", err.Error())
	})
}

func TestConflictError(t *testing.T) {
	err := pkgerrors.NewConflictError("marie dubois", "ORG", []string{"a", "b"})
	assert.Contains(t, err.Error(), "ORG")
	assert.Contains(t, err.Error(), "marie dubois")
	assert.True(t, pkgerrors.IsConflict(fmt.Errorf("merge: %w", err)))
}

func TestConsentMissingError(t *testing.T) {
	err := &pkgerrors.ConsentMissingError{Identity: "jean dupont"}
	assert.Equal(t, `no consent data for "jean dupont"`, err.Error())
	assert.True(t, pkgerrors.IsConsentMissing(err))
}

func TestIOError(t *testing.T) {
	base := errors.New("permission denied")
	err := pkgerrors.NewIOError("write", "/out/public.vcf", base)
	assert.Equal(t, "IO error during write of /out/public.vcf: permission denied", err.Error())
	assert.True(t, pkgerrors.IsIO(err))
	assert.ErrorIs(t, err, base)

	noPath := &pkgerrors.IOError{Operation: "read", Message: "closed"}
	assert.Equal(t, "IO error during read: closed", noPath.Error())
}

func TestConfigError(t *testing.T) {
	base := errors.New("bad value")
	err := pkgerrors.NewConfigError("origins", "duplicate origin", base)
	assert.Equal(t, "configuration error in origins: duplicate origin", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestParseError(t *testing.T) {
	err := pkgerrors.NewParseError("yaml", "consent.yaml", "bad indent", nil)
	assert.Equal(t, "parse error in yaml file consent.yaml: bad indent", err.Error())

	err = pkgerrors.NewParseError("rfc3339", "", "bad timestamp", nil)
	assert.Equal(t, "rfc3339 parse error: bad timestamp", err.Error())
}

func TestWrapHelpers(t *testing.T) {
	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapIO("read", "x", nil))
		assert.NoError(t, pkgerrors.WrapParse("yaml", "x", nil))
		assert.NoError(t, pkgerrors.WrapValidation("x", nil))
	})

	t.Run("wrap io", func(t *testing.T) {
		err := pkgerrors.WrapIO("open", "in.vcf", errors.New("missing"))
		require.Error(t, err)
		var ioErr *pkgerrors.IOError
		require.True(t, pkgerrors.As(err, &ioErr))
		assert.Equal(t, "in.vcf", ioErr.Path)
	})

	t.Run("wrap parse", func(t *testing.T) {
		base := errors.New("boom")
		err := pkgerrors.WrapParse("yaml", "a.yaml", base)
		assert.ErrorIs(t, err, base)
	})
}
