//go:build windows

package wasapi

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

var mmdevapi = windows.NewLazySystemDLL("mmdevapi.dll")

var procActivateAudioInterfaceAsync = mmdevapi.NewProc("ActivateAudioInterfaceAsync")

const activateTimeout = 5 * time.Second

// completionHandler is a minimal COM object implementing
// IActivateAudioInterfaceCompletionHandler and IAgileObject. The agile
// part matters: without it the activation callback never fires outside
// of a UWP apartment.
type completionHandler struct {
	vtbl *completionHandlerVtbl
	refs int32
	done chan struct{}
}

type completionHandlerVtbl struct {
	QueryInterface    uintptr
	AddRef            uintptr
	Release           uintptr
	ActivateCompleted uintptr
}

var completionHandlerVtblInstance = completionHandlerVtbl{
	QueryInterface: syscall.NewCallback(func(this *completionHandler, iid *ole.GUID, obj *unsafe.Pointer) uintptr {
		if ole.IsEqualGUID(iid, ole.IID_IUnknown) ||
			ole.IsEqualGUID(iid, iidICompletionHandler) ||
			ole.IsEqualGUID(iid, iidIAgileObject) {
			atomic.AddInt32(&this.refs, 1)
			*obj = unsafe.Pointer(this)
			return uintptr(hrOK)
		}
		*obj = nil
		return uintptr(hrNoInterface)
	}),
	AddRef: syscall.NewCallback(func(this *completionHandler) uintptr {
		return uintptr(atomic.AddInt32(&this.refs, 1))
	}),
	Release: syscall.NewCallback(func(this *completionHandler) uintptr {
		return uintptr(atomic.AddInt32(&this.refs, -1))
	}),
	ActivateCompleted: syscall.NewCallback(func(this *completionHandler, op uintptr) uintptr {
		close(this.done)
		return uintptr(hrOK)
	}),
}

func newCompletionHandler() *completionHandler {
	return &completionHandler{
		vtbl: &completionHandlerVtblInstance,
		refs: 1,
		done: make(chan struct{}),
	}
}

// activateProcessLoopback asynchronously activates an IAudioClient bound
// to the render streams of the given process tree and waits for the
// activation to finish.
func activateProcessLoopback(
	ctx context.Context,
	pid types.ProcessID,
) (*iAudioClient, error) {
	if err := procActivateAudioInterfaceAsync.Find(); err != nil {
		return nil, fmt.Errorf("%w: ActivateAudioInterfaceAsync is not available: %v",
			types.ErrUnsupportedPlatformVersion, err)
	}

	devicePath, err := windows.UTF16PtrFromString(virtualAudioDeviceProcessLoopback)
	if err != nil {
		return nil, fmt.Errorf("unable to encode the device path: %w", err)
	}

	params := audioClientActivationParams{
		ActivationType:      activationTypeProcessLoopback,
		TargetProcessID:     uint32(pid),
		ProcessLoopbackMode: processLoopbackModeIncludeTree,
	}
	propVar := propVariantBlob{
		Vt:       vtBlob,
		BlobSize: uint32(unsafe.Sizeof(params)),
		BlobData: (*byte)(unsafe.Pointer(&params)),
	}

	handler := newCompletionHandler()
	// The OS releases the handler on its own thread after the callback
	// returns, so the object must not be collected before that.
	defer runtime.KeepAlive(handler)
	var op *iActivateAudioInterfaceAsyncOperation
	hr, _, _ := procActivateAudioInterfaceAsync.Call(
		uintptr(unsafe.Pointer(devicePath)),
		uintptr(unsafe.Pointer(iidIAudioClient)),
		uintptr(unsafe.Pointer(&propVar)),
		uintptr(unsafe.Pointer(handler)),
		uintptr(unsafe.Pointer(&op)),
	)
	if err := hresult(hr).asError("ActivateAudioInterfaceAsync"); err != nil {
		return nil, err
	}
	defer op.Release()

	select {
	case <-handler.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(activateTimeout):
		return nil, fmt.Errorf("%w: the audio interface activation timed out",
			types.ErrBackendUnavailable)
	}

	activateHR, activated, err := op.GetActivateResult()
	if err != nil {
		return nil, err
	}
	if err := activateHR.asError("the process loopback activation"); err != nil {
		return nil, err
	}
	return (*iAudioClient)(unsafe.Pointer(activated)), nil
}
