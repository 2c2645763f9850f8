package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// isArtifact reports whether name is a lock-type file left behind by a
// client process.
func isArtifact(name string) bool {
	return name == "LOCK" || name == "SingletonLock" || strings.HasSuffix(name, ".lock")
}

// CleanArtifacts removes lock-type files (LOCK, SingletonLock, *.lock) under
// root, descending at most maxDepth directory levels. The walk uses an
// explicit stack and does not follow symlinked directories. It returns the
// removed paths. A missing root is not an error.
func CleanArtifacts(root string, maxDepth int) ([]string, error) {
	type frame struct {
		dir   string
		depth int
	}

	var removed []string
	var errs []error
	stack := []frame{{dir: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(f.dir)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		for _, e := range entries {
			p := filepath.Join(f.dir, e.Name())
			switch {
			case e.IsDir():
				if f.depth < maxDepth {
					stack = append(stack, frame{dir: p, depth: f.depth + 1})
				}
			case e.Type().IsRegular() || e.Type()&os.ModeSymlink != 0:
				if !isArtifact(e.Name()) {
					continue
				}
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					errs = append(errs, err)
					continue
				}
				removed = append(removed, p)
			}
		}
	}
	return removed, errors.Join(errs...)
}
