//go:build windows

package wasapi

import (
	"fmt"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type hresult uint32

const (
	hrOK             = hresult(0)
	hrErrNotFound    = hresult(0x80070490)
	hrAccessDenied   = hresult(0x80070005)
	hrNoInterface    = hresult(0x80004002)
	hrDeviceInvalid  = hresult(0x88890004) // AUDCLNT_E_DEVICE_INVALIDATED
	hrDeviceInUse    = hresult(0x8889000A) // AUDCLNT_E_DEVICE_IN_USE
	hrFormatInvalid  = hresult(0x88890008) // AUDCLNT_E_UNSUPPORTED_FORMAT
	hrServiceStopped = hresult(0x88890010) // AUDCLNT_E_SERVICE_NOT_RUNNING
)

func (hr hresult) Succeeded() bool {
	return hr&0x80000000 == 0
}

// asError maps an HRESULT to the error taxonomy of the module; the
// original code is always retained in the message.
func (hr hresult) asError(operation string) error {
	if hr.Succeeded() {
		return nil
	}
	switch hr {
	case hrErrNotFound:
		return fmt.Errorf("%w: %s: the target process has no audio session (HRESULT 0x%08X)",
			types.ErrProcessNotFound, operation, uint32(hr))
	case hrAccessDenied:
		return fmt.Errorf("%w: %s (HRESULT 0x%08X)",
			types.ErrPermissionDenied, operation, uint32(hr))
	case hrFormatInvalid:
		return fmt.Errorf("%w: %s (HRESULT 0x%08X)",
			types.ErrUnsupportedFormat, operation, uint32(hr))
	case hrDeviceInvalid, hrDeviceInUse, hrServiceStopped:
		return fmt.Errorf("%w: %s (HRESULT 0x%08X)",
			types.ErrBackendUnavailable, operation, uint32(hr))
	}
	return fmt.Errorf("%s failed: HRESULT 0x%08X", operation, uint32(hr))
}
