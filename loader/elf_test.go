package loader_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
)

// writeTempFile writes content to a file under the spec's temp dir and
// returns its path.
func writeTempFile(content []byte) (string, error) {
	path := filepath.Join(GinkgoT().TempDir(), "image.bin")
	return path, os.WriteFile(path, content, 0o644)
}
