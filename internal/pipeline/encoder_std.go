//go:build !govips || !cgo

package pipeline

import "github.com/dunamismax/photoflow/internal/editor"

// Startup and Shutdown manage the libvips runtime in govips builds. The
// pure-Go build has nothing to start.
func Startup() error { return nil }

func Shutdown() {}

func newEncoder() (editor.Encoder, error) {
	return editor.DefaultEncoder, nil
}
