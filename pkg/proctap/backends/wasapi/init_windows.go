//go:build windows

package wasapi

import (
	"github.com/xaionaro-go/proctap/pkg/proctap/registry"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

const (
	Priority = 200
)

func init() {
	registry.RegisterBackendFactory(Priority, BackendWASAPIFactory{})
}

type BackendWASAPIFactory struct{}

func (BackendWASAPIFactory) NewBackend() (types.Backend, error) {
	return NewBackend(), nil
}
