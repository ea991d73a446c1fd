//go:build darwin && cgo

package coreaudio

import (
	"github.com/xaionaro-go/proctap/pkg/proctap/registry"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

const (
	Priority = 200
)

func init() {
	registry.RegisterBackendFactory(Priority, BackendCoreAudioFactory{})
}

type BackendCoreAudioFactory struct{}

func (BackendCoreAudioFactory) NewBackend() (types.Backend, error) {
	return NewBackend(), nil
}
