package core_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apecharmilles/backend/core"
)

func Test_ValidationError_FieldMap(t *testing.T) {
	err := core.NewValidationError(errors.New("email déjà utilisé"),
		core.FieldError{Field: "email", Error: "email déjà utilisé"},
	)

	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "email déjà utilisé", vErr.Error())
	assert.Equal(t, map[string]string{"email": "email déjà utilisé"}, vErr.FieldMap())

	bare := core.NewValidationError(errors.New("oops")).(*core.ValidationError)
	assert.Nil(t, bare.FieldMap())
}

func Test_IsShutdown(t *testing.T) {
	err := core.NewShutdownError("integrity issue")
	assert.True(t, core.IsShutdown(err))
	assert.True(t, core.IsShutdown(errors.Wrap(err, "handling request")))
	assert.False(t, core.IsShutdown(errors.New("nope")))
}
