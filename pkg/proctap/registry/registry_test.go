package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type factoryA struct{}

func (factoryA) NewBackend() (types.Backend, error) { return nil, nil }

type factoryB struct{}

func (factoryB) NewBackend() (types.Backend, error) { return nil, nil }

func TestBackendFactories(t *testing.T) {
	RegisterBackendFactory(10, factoryA{})
	RegisterBackendFactory(20, factoryB{})

	require.Equal(t, []BackendFactory{factoryB{}, factoryA{}}, BackendFactories())

	t.Run("DoubleRegistrationPanics", func(t *testing.T) {
		require.Panics(t, func() {
			RegisterBackendFactory(30, factoryA{})
		})
	})
}
