package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/runnerrunnerrunner/nikola/compiler"
)

func TestIsHashDir(t *testing.T) {
	valid := []string{"0a1b2c3d", "00000000", "DEADBEEF"}
	for _, name := range valid {
		if !isHashDir(name) {
			t.Fatalf("expected %q to be a hash dir", name)
		}
	}
	invalid := []string{"", ".lock", "0a1b2c3", "0a1b2c3d4", "nothexxx", "units"}
	for _, name := range invalid {
		if isHashDir(name) {
			t.Fatalf("did not expect %q to be a hash dir", name)
		}
	}
}

func TestUnitInfoHashShape(t *testing.T) {
	short, full := unitInfo(compiler.Plain, "int x;\n")
	if len(short) != 8 {
		t.Fatalf("short hash %q has length %d, want 8", short, len(short))
	}
	if len(full) != 64 {
		t.Fatalf("full hash %q has length %d, want 64", full, len(full))
	}
	if full[:8] != short {
		t.Fatalf("short hash %q is not a prefix of %q", short, full)
	}
}

func TestUnitInfoDistinguishesDialects(t *testing.T) {
	_, plain := unitInfo(compiler.Plain, "int x;\n")
	_, cuda := unitInfo(compiler.CUDA, "int x;\n")
	if plain == cuda {
		t.Fatalf("same hash %q for different dialects", plain)
	}
	_, other := unitInfo(compiler.Plain, "int y;\n")
	if plain == other {
		t.Fatalf("same hash %q for different texts", plain)
	}
}

func TestWriteUnitRoundTrip(t *testing.T) {
	cacheDir := t.TempDir()
	text := "#include <stdint.h>\n\nint Inc(void) {\n    return 0;\n}\n"

	path, err := writeUnit(cacheDir, compiler.Plain, "inc", text)
	if err != nil {
		t.Fatalf("writeUnit: %v", err)
	}
	if filepath.Base(path) != "inc.c" {
		t.Fatalf("unexpected file name %q, want inc.c", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written unit: %v", err)
	}
	if string(data) != text {
		t.Fatalf("unit content mismatch:\n%s", data)
	}

	// A completion marker holds the full hash next to the unit.
	_, full := unitInfo(compiler.Plain, text)
	marker, err := os.ReadFile(filepath.Join(filepath.Dir(path), ".hash"))
	if err != nil {
		t.Fatalf("read hash marker: %v", err)
	}
	if string(marker) != full {
		t.Fatalf("hash marker %q, want %q", marker, full)
	}

	// Second write of the same unit resolves to the cached file.
	again, err := writeUnit(cacheDir, compiler.Plain, "inc", text)
	if err != nil {
		t.Fatalf("writeUnit cached: %v", err)
	}
	if again != path {
		t.Fatalf("cached path %q, want %q", again, path)
	}
}

func TestWriteUnitCUDAExtension(t *testing.T) {
	path, err := writeUnit(t.TempDir(), compiler.CUDA, "inc", "__global__ void k(void) {}\n")
	if err != nil {
		t.Fatalf("writeUnit: %v", err)
	}
	if filepath.Base(path) != "inc.cu" {
		t.Fatalf("unexpected file name %q, want inc.cu", filepath.Base(path))
	}
}

func TestWriteUnitRebuildsOnMarkerMismatch(t *testing.T) {
	cacheDir := t.TempDir()
	text := "int x;\n"
	path, err := writeUnit(cacheDir, compiler.Plain, "demo", text)
	if err != nil {
		t.Fatalf("writeUnit: %v", err)
	}

	// A corrupted marker means the directory cannot be trusted.
	hashFile := filepath.Join(filepath.Dir(path), ".hash")
	if err := os.WriteFile(hashFile, []byte("bogus"), 0644); err != nil {
		t.Fatalf("corrupt marker: %v", err)
	}

	again, err := writeUnit(cacheDir, compiler.Plain, "demo", text)
	if err != nil {
		t.Fatalf("writeUnit after corruption: %v", err)
	}
	if again != path {
		t.Fatalf("rebuilt path %q, want %q", again, path)
	}
	_, full := unitInfo(compiler.Plain, text)
	marker, err := os.ReadFile(hashFile)
	if err != nil {
		t.Fatalf("read hash marker: %v", err)
	}
	if string(marker) != full {
		t.Fatalf("marker not restored, got %q", marker)
	}
}

func TestWriteUnitSharesDirAcrossNames(t *testing.T) {
	cacheDir := t.TempDir()
	text := "int x;\n"
	first, err := writeUnit(cacheDir, compiler.Plain, "one", text)
	if err != nil {
		t.Fatalf("writeUnit one: %v", err)
	}
	second, err := writeUnit(cacheDir, compiler.Plain, "two", text)
	if err != nil {
		t.Fatalf("writeUnit two: %v", err)
	}
	if filepath.Dir(first) != filepath.Dir(second) {
		t.Fatalf("same content landed in %q and %q", filepath.Dir(first), filepath.Dir(second))
	}
	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("unit %q missing: %v", p, err)
		}
	}
}

func TestWriteUnitConcurrent(t *testing.T) {
	cacheDir := t.TempDir()
	text := "int x;\n"

	var wg sync.WaitGroup
	paths := make([]string, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = writeUnit(cacheDir, compiler.Plain, "demo", text)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Fatalf("writer %d resolved %q, writer 0 resolved %q", i, paths[i], paths[0])
		}
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if string(data) != text {
		t.Fatalf("unit content mismatch:\n%s", data)
	}
}

func TestCleanupOldUnitsKeepsRecent(t *testing.T) {
	unitsDir := t.TempDir()

	// Seven hash dirs with staggered ages, plus entries cleanup must ignore.
	base := time.Now().Add(-time.Hour)
	names := []string{"00000000", "00000001", "00000002", "00000003", "00000004", "00000005", "00000006"}
	for i, name := range names {
		dir := filepath.Join(unitsDir, name)
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		mtime := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(dir, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(unitsDir, "notahash"), 0755); err != nil {
		t.Fatalf("mkdir notahash: %v", err)
	}
	if err := os.WriteFile(filepath.Join(unitsDir, ".lock"), nil, 0644); err != nil {
		t.Fatalf("write lock file: %v", err)
	}

	cleanupOldUnits(unitsDir, 5, 0)

	for _, name := range names[:2] {
		if _, err := os.Stat(filepath.Join(unitsDir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed, stat err: %v", name, err)
		}
	}
	for _, name := range names[2:] {
		if _, err := os.Stat(filepath.Join(unitsDir, name)); err != nil {
			t.Fatalf("expected %s to survive: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(unitsDir, "notahash")); err != nil {
		t.Fatalf("non-hash dir was touched: %v", err)
	}
	if _, err := os.Stat(filepath.Join(unitsDir, ".lock")); err != nil {
		t.Fatalf("lock file was touched: %v", err)
	}
}

func TestCleanupOldUnitsHonorsMinAge(t *testing.T) {
	unitsDir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	names := []string{"00000000", "00000001", "00000002", "00000003"}
	for i, name := range names {
		dir := filepath.Join(unitsDir, name)
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		mtime := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(dir, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}

	// Everything is younger than a week, so nothing may go.
	cleanupOldUnits(unitsDir, 1, 7*24*60*60)

	for _, name := range names {
		if _, err := os.Stat(filepath.Join(unitsDir, name)); err != nil {
			t.Fatalf("expected %s to survive: %v", name, err)
		}
	}
}

func TestDefaultCacheEnvOverride(t *testing.T) {
	custom := t.TempDir()
	t.Setenv("NIKOLACACHE", custom)
	if got := defaultCache(); got != custom {
		t.Fatalf("defaultCache() = %q, want %q", got, custom)
	}
}

func TestDefaultCacheNamesNikolaDir(t *testing.T) {
	t.Setenv("NIKOLACACHE", "")
	got := defaultCache()
	if filepath.Base(got) != "nikola" {
		t.Fatalf("defaultCache() = %q, want a nikola-named directory", got)
	}
}
