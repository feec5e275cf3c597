package migration

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RegistryAddAndLoad(t *testing.T) {
	r := NewRegistry()

	u := &Unit{Version: 100, Name: "create_users"}
	require.NoError(t, r.Add(u))

	loaded, err := r.Load("create_users")
	require.NoError(t, err)
	assert.Same(t, u, loaded)
}

func Test_RegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Add(&Unit{Version: 100, Name: "create_users"}))

	err := r.Add(&Unit{Version: 200, Name: "create_users"})
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
}

func Test_RegistryLoadUnknownName(t *testing.T) {
	r := NewRegistry()

	_, err := r.Load("does_not_exist")
	assert.True(t, errors.Is(err, ErrNotRegistered))
}
