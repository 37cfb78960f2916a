package daemonrun

import (
	"os"
	"path/filepath"
	"testing"

	"scriptreel/internal/queue"
	"scriptreel/internal/testsupport"
)

func TestGeneratorsCoverEveryKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	gens := generators(cfg, store, nil)
	seen := map[queue.AssetKind]bool{}
	for _, g := range gens {
		seen[g.Kind()] = true
	}
	for _, kind := range []queue.AssetKind{queue.KindAudio, queue.KindImage, queue.KindVideo} {
		if !seen[kind] {
			t.Fatalf("missing generator for %s", kind)
		}
	}
}

func TestReadPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if pid, err := ReadPID(cfg); err != nil || pid != 0 {
		t.Fatalf("expected no pid before start, got %d (%v)", pid, err)
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := writePIDFile(filepath.Join(cfg.Paths.DataDir, "scriptreeld.pid")); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := ReadPID(cfg)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}
}
