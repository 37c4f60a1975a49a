package partition

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
)

// PathValidator rejects manifest paths that escape the configured data
// root. This defends against a corrupted or malicious manifest pointing
// outside the sanctioned storage tree. Validate never returns an error:
// one bad entry must not abort a query touching many valid ones.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dataRoot.
func NewPathValidator(dataRoot string) (*PathValidator, error) {
	if dataRoot == "" {
		return nil, fmt.Errorf("partition: data root is required")
	}
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("partition: failed to resolve data root %q: %w", dataRoot, err)
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &PathValidator{root: abs}, nil
}

// Root returns the canonical data root.
func (v *PathValidator) Root() string {
	return v.root
}

// Validate resolves a candidate path to canonical absolute form and
// accepts it only if it is a descendant of the data root. Relative
// manifest entries are resolved against the root. Rejections are logged
// as warnings and reported as ok=false.
func (v *PathValidator) Validate(path string) (abs string, ok bool) {
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(v.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	// Canonicalize through symlinks, or a link placed inside the root
	// could point anywhere. For entries not on disk yet the parent
	// directory is resolved instead; failing that, the cleaned lexical
	// form (".." segments already collapsed) is checked as-is.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if dir, err := filepath.EvalSymlinks(filepath.Dir(candidate)); err == nil {
		candidate = filepath.Join(dir, filepath.Base(candidate))
	}

	// A partition must be a strict descendant of the root, never the
	// root itself.
	if !strings.HasPrefix(candidate, v.root+string(filepath.Separator)) {
		log.Printf("partition: rejecting manifest entry outside data root %s: %s", v.root, path)
		return "", false
	}
	return candidate, true
}
