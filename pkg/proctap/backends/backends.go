// Package backends registers every capture backend available on the
// current platform. Import it for the side effect:
//
//	import _ "github.com/xaionaro-go/proctap/pkg/proctap/backends"
package backends

import (
	_ "github.com/xaionaro-go/proctap/pkg/proctap/backends/pulseaudio"
)
