//go:build darwin && cgo

package backends

import (
	_ "github.com/xaionaro-go/proctap/pkg/proctap/backends/coreaudio"
)
