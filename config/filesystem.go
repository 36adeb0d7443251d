package config

import (
	"io/fs"
	"os"
)

// fileSystem is where LoadFile reads from. Tests swap in an fstest.MapFS.
var fileSystem fs.FS = osFS{}

type osFS struct{}

// Open takes any OS path, relative or absolute.
func (osFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}
