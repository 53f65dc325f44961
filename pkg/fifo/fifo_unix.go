// +build !windows

package fifo

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

func open(path string) (io.ReadCloser, error) {
	if err := syscall.Mkfifo(path, 0644); err != nil {
		return nil, fmt.Errorf("couldn't create a named pipe at %s: %v", path, err)
	}
	// Blocks until a writer attaches to the other end.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", path, err)
	}
	return f, nil
}
