//go:build !unix

package stream

import (
	"os"

	"github.com/forensiccore/diskvault/internal/coreerr"
)

func mmapFile(f *os.File, size int) ([]byte, error) {
	return nil, coreerr.Unsupportedf("memory-mapped view is not supported on this platform")
}

func munmapFile(data []byte) error {
	return nil
}
