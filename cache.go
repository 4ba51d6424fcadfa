package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/runnerrunnerrunner/nikola/compiler"
)

var UNITS_DIR = "units"

// defaultCache gets env variable NIKOLACACHE,
// falling back to the conventional cache dir for windows, mac, linux
func defaultCache() string {
	if env := os.Getenv("NIKOLACACHE"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	var cache string
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			cache = filepath.Join(localAppData, "nikola")
			return cache
		}
		cache = filepath.Join(homeDir, "AppData", "Local", "nikola")

	case "darwin":
		cache = filepath.Join(homeDir, "Library", "Caches", "nikola")

	default: // Linux and others
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			cache = filepath.Join(xdg, "nikola")
			return cache
		}
		cache = filepath.Join(homeDir, ".cache", "nikola")
	}

	os.Setenv("NIKOLACACHE", cache)
	return cache
}

// isHashDir reports whether name has the unit directory shape, an
// 8-char hex string as produced by unitInfo.
func isHashDir(name string) bool {
	if len(name) != 8 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// unitInfo hashes a translation unit's identity: the dialect and the
// emitted text. Returns short hash (8 chars for directory name) and
// full hash (for collision check).
func unitInfo(d compiler.Dialect, text string) (shortHash, fullHash string) {
	h := sha256.New()
	h.Write([]byte(d.String()))
	h.Write([]byte(text))
	fullHash = hex.EncodeToString(h.Sum(nil))
	return fullHash[:8], fullHash
}

// cleanupOldUnits removes old unit hash directories. The 'keep' most
// recent always stay, as does anything younger than minAge, so units
// still in use by concurrent processes survive.
func cleanupOldUnits(unitsDir string, keep int, minAge int64) {
	entries, err := os.ReadDir(unitsDir)
	if err != nil || len(entries) <= keep {
		return
	}

	// Collect hash directories with their mod times
	type dirInfo struct {
		name  string
		mtime int64
	}
	var dirs []dirInfo
	for _, e := range entries {
		if e.IsDir() && isHashDir(e.Name()) {
			if info, err := e.Info(); err == nil {
				dirs = append(dirs, dirInfo{e.Name(), info.ModTime().Unix()})
			}
		}
	}

	if len(dirs) <= keep {
		return
	}

	// Oldest first; only entries past minAge are removed
	cutoff := time.Now().Unix() - minAge
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime < dirs[j].mtime })
	for i := 0; i < len(dirs)-keep; i++ {
		if dirs[i].mtime < cutoff {
			path := filepath.Join(unitsDir, dirs[i].name)
			if err := os.RemoveAll(path); err != nil {
				fmt.Printf("warning: failed to remove old unit %s: %v\n", path, err)
			}
		}
	}
}

// writeUnit stores an emitted translation unit under the cache,
// addressed by its content hash, and returns the path to the source
// file. A file lock ensures concurrent processes see either a fully
// written unit or write it themselves; the .hash file acts as the
// completion marker.
func writeUnit(cacheDir string, d compiler.Dialect, name, text string) (string, error) {
	unitsDir := filepath.Join(cacheDir, UNITS_DIR)
	if err := os.MkdirAll(unitsDir, 0755); err != nil {
		return "", fmt.Errorf("create units dir: %w", err)
	}

	// One lock around the whole check-then-write sequence
	lock := flock.New(filepath.Join(unitsDir, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("acquire units lock: %w", err)
	}
	defer lock.Unlock()

	shortHash, fullHash := unitInfo(d, text)
	unitDir := filepath.Join(unitsDir, shortHash)
	hashFile := filepath.Join(unitDir, ".hash")
	outPath := filepath.Join(unitDir, name+d.FileExt())

	// Check if already written (verify full hash match)
	if _, err := os.Stat(outPath); err == nil {
		if storedHash, err := os.ReadFile(hashFile); err == nil && string(storedHash) == fullHash {
			return outPath, nil
		}
		// Hash collision or interrupted write - redo
		os.RemoveAll(unitDir)
	}

	// Cleanup old units (keep 5 most recent, only delete if older than 1 week)
	cleanupOldUnits(unitsDir, 5, 7*24*60*60)

	if err := os.MkdirAll(unitDir, 0755); err != nil {
		return "", fmt.Errorf("create unit dir: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write unit: %w", err)
	}
	// Store full hash after successful write (acts as completion marker)
	if err := os.WriteFile(hashFile, []byte(fullHash), 0644); err != nil {
		return "", fmt.Errorf("write hash file: %w", err)
	}
	return outPath, nil
}
