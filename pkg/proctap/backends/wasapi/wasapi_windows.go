//go:build windows

package wasapi

import (
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
)

var (
	iidIAudioClient        = ole.NewGUID("{1CB9AD4C-DBFA-4CC1-B936-4180CE9AE2E4}")
	iidIAudioCaptureClient = ole.NewGUID("{C8ADBD64-E71E-48A0-A4DE-185C395CD317}")
	iidIAgileObject        = ole.NewGUID("{94EA2B94-E9CC-49E0-C0FF-EE64CA8F5B90}")
	iidICompletionHandler  = ole.NewGUID("{41D949AB-9862-444A-80F6-C261334DA5EB}")
)

const (
	waveFormatIEEEFloat = 3

	audclntShareModeShared = 0

	audclntStreamFlagsLoopback       = 0x00020000
	audclntStreamFlagsEventCallback  = 0x00040000
	audclntStreamFlagsAutoConvertPCM = 0x80000000

	audclntBufferFlagsSilent = 0x2

	// The virtual audio device that backs process loopback captures.
	virtualAudioDeviceProcessLoopback = `VAD\Process_Loopback`

	activationTypeProcessLoopback = 1

	processLoopbackModeIncludeTree = 0
)

// waveFormatEx mirrors WAVEFORMATEX. The struct is passed by pointer, so
// the trailing Go padding is harmless.
type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

// audioClientActivationParams mirrors AUDIOCLIENT_ACTIVATION_PARAMS with
// the process loopback arm of the union.
type audioClientActivationParams struct {
	ActivationType      uint32
	TargetProcessID     uint32
	ProcessLoopbackMode uint32
}

// propVariantBlob mirrors a PROPVARIANT holding a VT_BLOB on amd64/arm64:
// the union starts at offset 8, and the blob pointer within it at 16.
type propVariantBlob struct {
	Vt        uint16
	reserved1 uint16
	reserved2 uint16
	reserved3 uint16
	BlobSize  uint32
	_         uint32
	BlobData  *byte
}

const vtBlob = 65

type iAudioClientVtbl struct {
	QueryInterface    uintptr
	AddRef            uintptr
	Release           uintptr
	Initialize        uintptr
	GetBufferSize     uintptr
	GetStreamLatency  uintptr
	GetCurrentPadding uintptr
	IsFormatSupported uintptr
	GetMixFormat      uintptr
	GetDevicePeriod   uintptr
	Start             uintptr
	Stop              uintptr
	Reset             uintptr
	SetEventHandle    uintptr
	GetService        uintptr
}

type iAudioClient struct {
	vtbl *iAudioClientVtbl
}

func (c *iAudioClient) Initialize(
	shareMode uint32,
	streamFlags uint32,
	bufferDuration int64,
	periodicity int64,
	format *waveFormatEx,
) error {
	hr, _, _ := syscall.SyscallN(
		c.vtbl.Initialize,
		uintptr(unsafe.Pointer(c)),
		uintptr(shareMode),
		uintptr(streamFlags),
		uintptr(bufferDuration),
		uintptr(periodicity),
		uintptr(unsafe.Pointer(format)),
		0,
	)
	return hresult(hr).asError("IAudioClient::Initialize")
}

func (c *iAudioClient) SetEventHandle(event uintptr) error {
	hr, _, _ := syscall.SyscallN(
		c.vtbl.SetEventHandle,
		uintptr(unsafe.Pointer(c)),
		event,
	)
	return hresult(hr).asError("IAudioClient::SetEventHandle")
}

func (c *iAudioClient) GetService(iid *ole.GUID) (unsafe.Pointer, error) {
	var service unsafe.Pointer
	hr, _, _ := syscall.SyscallN(
		c.vtbl.GetService,
		uintptr(unsafe.Pointer(c)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&service)),
	)
	if err := hresult(hr).asError("IAudioClient::GetService"); err != nil {
		return nil, err
	}
	return service, nil
}

func (c *iAudioClient) Start() error {
	hr, _, _ := syscall.SyscallN(c.vtbl.Start, uintptr(unsafe.Pointer(c)))
	return hresult(hr).asError("IAudioClient::Start")
}

func (c *iAudioClient) Stop() error {
	hr, _, _ := syscall.SyscallN(c.vtbl.Stop, uintptr(unsafe.Pointer(c)))
	return hresult(hr).asError("IAudioClient::Stop")
}

func (c *iAudioClient) Release() {
	syscall.SyscallN(c.vtbl.Release, uintptr(unsafe.Pointer(c)))
}

type iAudioCaptureClientVtbl struct {
	QueryInterface    uintptr
	AddRef            uintptr
	Release           uintptr
	GetBuffer         uintptr
	ReleaseBuffer     uintptr
	GetNextPacketSize uintptr
}

type iAudioCaptureClient struct {
	vtbl *iAudioCaptureClientVtbl
}

func (c *iAudioCaptureClient) GetBuffer() (data *byte, frames uint32, flags uint32, err error) {
	hr, _, _ := syscall.SyscallN(
		c.vtbl.GetBuffer,
		uintptr(unsafe.Pointer(c)),
		uintptr(unsafe.Pointer(&data)),
		uintptr(unsafe.Pointer(&frames)),
		uintptr(unsafe.Pointer(&flags)),
		0,
		0,
	)
	err = hresult(hr).asError("IAudioCaptureClient::GetBuffer")
	return
}

func (c *iAudioCaptureClient) ReleaseBuffer(frames uint32) error {
	hr, _, _ := syscall.SyscallN(
		c.vtbl.ReleaseBuffer,
		uintptr(unsafe.Pointer(c)),
		uintptr(frames),
	)
	return hresult(hr).asError("IAudioCaptureClient::ReleaseBuffer")
}

func (c *iAudioCaptureClient) GetNextPacketSize() (uint32, error) {
	var frames uint32
	hr, _, _ := syscall.SyscallN(
		c.vtbl.GetNextPacketSize,
		uintptr(unsafe.Pointer(c)),
		uintptr(unsafe.Pointer(&frames)),
	)
	return frames, hresult(hr).asError("IAudioCaptureClient::GetNextPacketSize")
}

func (c *iAudioCaptureClient) Release() {
	syscall.SyscallN(c.vtbl.Release, uintptr(unsafe.Pointer(c)))
}

type iActivateAudioInterfaceAsyncOperationVtbl struct {
	QueryInterface    uintptr
	AddRef            uintptr
	Release           uintptr
	GetActivateResult uintptr
}

type iActivateAudioInterfaceAsyncOperation struct {
	vtbl *iActivateAudioInterfaceAsyncOperationVtbl
}

func (op *iActivateAudioInterfaceAsyncOperation) GetActivateResult() (hresult, *ole.IUnknown, error) {
	var (
		activateHR uint32
		activated  *ole.IUnknown
	)
	hr, _, _ := syscall.SyscallN(
		op.vtbl.GetActivateResult,
		uintptr(unsafe.Pointer(op)),
		uintptr(unsafe.Pointer(&activateHR)),
		uintptr(unsafe.Pointer(&activated)),
	)
	if err := hresult(hr).asError("IActivateAudioInterfaceAsyncOperation::GetActivateResult"); err != nil {
		return 0, nil, err
	}
	return hresult(activateHR), activated, nil
}

func (op *iActivateAudioInterfaceAsyncOperation) Release() {
	syscall.SyscallN(op.vtbl.Release, uintptr(unsafe.Pointer(op)))
}
