//go:build windows

package backends

import (
	_ "github.com/xaionaro-go/proctap/pkg/proctap/backends/wasapi"
)
