package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

// Fingerprint computes the content-addressed cache key for a Source (spec
// §4.C): gitId for a Git source, the basename for a Local source, and the
// sanitized path for a Globus source. Empty sources never fingerprint —
// callers must not cache them.
func Fingerprint(src store.Source) (string, bool) {
	switch src.Kind {
	case store.SourceGit:
		return hashKey("git", src.GitID), true
	case store.SourceLocal:
		return hashKey("local", filepath.Base(src.LocalPath)), true
	case store.SourceGlobus:
		return hashKey("globus", sanitizeGlobusPath(src.GlobusEndpoint+src.GlobusPath)), true
	default:
		return "", false
	}
}

func hashKey(kind, key string) string {
	sum := sha256.Sum256([]byte(kind + ":" + key))
	return hex.EncodeToString(sum[:])
}

// sanitizeGlobusPath strips characters a cache filename must not carry.
func sanitizeGlobusPath(p string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(p)
}
