//go:build !unix

package blobstore

import (
	"fmt"
	"os"
)

// mmapFile is not supported on non-Unix platforms; BlobStore falls back to
// pread-based access when this returns an error (see (*BlobStore).readAt).
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return nil, fmt.Errorf("memory mapping is not supported on this platform")
}

// munmapFile is a no-op on non-Unix platforms.
func munmapFile(data []byte) error {
	return nil
}

// flock is a no-op on non-Unix platforms; single-writer safety there is the
// caller's responsibility.
func flock(f *os.File) error {
	return nil
}

// funlock is a no-op on non-Unix platforms.
func funlock(f *os.File) error {
	return nil
}
