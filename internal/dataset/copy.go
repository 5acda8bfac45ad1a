package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const copyBufferSize = 256 * 1024

// CopyFile copies src to dst, creating parent directories. An existing dst
// is truncated.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // corpus paths come from the caller
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	out, err := os.Create(dst) //nolint:gosec // corpus paths come from the caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	buf := make([]byte, copyBufferSize)
	_, err = io.CopyBuffer(out, in, buf)
	return err
}
