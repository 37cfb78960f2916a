package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// PNGHeader is enough of a PNG for content sniffing.
var PNGHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// WriteFile writes data to path, creating parent directories. When data is
// empty it writes size bytes of a repeating pattern (at least one).
func WriteFile(t testing.TB, path string, data []byte, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if len(data) == 0 {
		if size <= 0 {
			size = 1
		}
		data = make([]byte, size)
		for i := range data {
			data[i] = 0x42
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
