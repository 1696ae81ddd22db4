// Package index brings a chunk/embedding store (internal/store) into
// agreement with a target directory tree (spec.md §4.6).
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lwyBZss8924d/ckindex/internal/scanner"
	"github.com/lwyBZss8924d/ckindex/internal/store"
)

// ChangeKind is the five-way diff outcome for a single file (spec.md §4.6).
type ChangeKind string

const (
	ChangeAdd     ChangeKind = "add"
	ChangeSkip    ChangeKind = "skip"
	ChangeTouch   ChangeKind = "touch"
	ChangeReplace ChangeKind = "replace"
	ChangeRemove  ChangeKind = "remove"
)

// FileChange is one outcome of Diff. Info is nil for ChangeRemove.
type FileChange struct {
	Path string
	Kind ChangeKind
	Info *scanner.FileInfo
}

// Diff compares the current scan against the store's file records,
// producing the five-way classification spec.md §4.6 describes.
// contentHash is called only when mtime/size have changed, to decide
// between a metadata-only touch and a full replace.
func Diff(scanned []*scanner.FileInfo, indexed map[string]*store.FileRecord, contentHash func(path string) (string, error)) ([]FileChange, error) {
	seen := make(map[string]bool, len(scanned))
	changes := make([]FileChange, 0, len(scanned))

	for _, f := range scanned {
		seen[f.Path] = true
		rec, ok := indexed[f.Path]
		if !ok {
			changes = append(changes, FileChange{Path: f.Path, Kind: ChangeAdd, Info: f})
			continue
		}

		if rec.MTimeNS == f.ModTime.UnixNano() && rec.Size == f.Size {
			changes = append(changes, FileChange{Path: f.Path, Kind: ChangeSkip, Info: f})
			continue
		}

		hash, err := contentHash(f.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", f.Path, err)
		}
		if hash == rec.ContentHash {
			changes = append(changes, FileChange{Path: f.Path, Kind: ChangeTouch, Info: f})
		} else {
			changes = append(changes, FileChange{Path: f.Path, Kind: ChangeReplace, Info: f})
		}
	}

	for path := range indexed {
		if !seen[path] {
			changes = append(changes, FileChange{Path: path, Kind: ChangeRemove})
		}
	}

	return changes, nil
}

// hashFileContent is the default contentHash function Diff callers pass:
// the full SHA256 of a file's bytes, matching store.FileRecord.ContentHash.
func hashFileContent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
