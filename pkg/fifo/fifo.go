// Package fifo provisions the named channel an ITM producer writes into.
package fifo

import (
	"fmt"
	"io"
	"os"
)

// Open provisions a readable byte stream endpoint at path. Any stale entry
// left behind by a previous run is removed first. Where the platform has
// named pipes, one is created and opened for reading, which blocks until a
// writer attaches; elsewhere a plain read-write file stands in.
func Open(path string) (io.ReadCloser, error) {
	if _, err := os.Lstat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("couldn't remove %s: %v", path, err)
		}
	}
	return open(path)
}
