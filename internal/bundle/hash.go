package bundle

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// HashEntry is one line of hashes/sha256sums.txt.
type HashEntry struct {
	Path   string
	SHA256 string
}

// FileSHA256 returns the hex SHA-256 of a file's contents.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// hashTree hashes every regular file under root except the hash file
// itself and anything under meta/, returning entries sorted by path.
// Paths use forward slashes regardless of platform.
func hashTree(root string) ([]HashEntry, error) {
	var entries []HashEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == HashFile || rel == MetaDir || strings.HasPrefix(rel, MetaDir+"/") {
			return nil
		}
		sum, err := FileSHA256(path)
		if err != nil {
			return err
		}
		entries = append(entries, HashEntry{Path: rel, SHA256: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// formatHashEntries renders entries in sha256sum format, one per line.
func formatHashEntries(entries []HashEntry) []byte {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.SHA256)
		b.WriteString("  ")
		b.WriteString(e.Path)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func parseHashEntries(data []byte) ([]HashEntry, error) {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		return nil, exitcode.Errorf(exitcode.HashMismatch, "hash file missing trailing newline")
	}
	var entries []HashEntry
	lineNo := 0
	for len(data) > 0 {
		lineNo++
		idx := strings.IndexByte(string(data), '\n')
		line := string(data[:idx])
		data = data[idx+1:]

		sum, path, ok := strings.Cut(line, "  ")
		if !ok || !isSHA256Hex(sum) || path == "" {
			return nil, exitcode.Errorf(exitcode.HashMismatch, "hash file line %d malformed", lineNo)
		}
		entries = append(entries, HashEntry{Path: path, SHA256: sum})
	}
	return entries, nil
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
