package pulseaudio

import (
	"github.com/xaionaro-go/proctap/pkg/proctap/registry"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

const (
	Priority = 100
)

func init() {
	registry.RegisterBackendFactory(Priority, BackendPulseFactory{})
}

type BackendPulseFactory struct{}

func (BackendPulseFactory) NewBackend() (types.Backend, error) {
	return NewBackend(), nil
}
