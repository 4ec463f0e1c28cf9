package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveWithin normalizes p and verifies the result falls inside one of the
// allowed directories. Validation happens at invocation time, not just at
// declaration time: relative segments, "..", and symlinked ancestors are all
// resolved before the containment check.
func resolveWithin(allowed []string, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	// Resolve symlinks on the deepest existing ancestor so a link inside an
	// allowed directory cannot point the real target outside it. The target
	// itself may not exist yet (e.g. a file about to be written).
	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}

	for _, dir := range allowed {
		allowedAbs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		allowedAbs = filepath.Clean(allowedAbs)
		if real, err := filepath.EvalSymlinks(allowedAbs); err == nil {
			allowedAbs = real
		}
		if resolved == allowedAbs || strings.HasPrefix(resolved, allowedAbs+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("path %s escapes allowed directories", p)
}

// resolveExisting evaluates symlinks on the longest existing prefix of abs
// and rejoins the non-existing remainder.
func resolveExisting(abs string) (string, error) {
	current := abs
	var tail []string
	for {
		if _, err := os.Lstat(current); err == nil {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
	}

	real, err := filepath.EvalSymlinks(current)
	if err != nil {
		return "", err
	}
	if len(tail) == 0 {
		return real, nil
	}
	return filepath.Join(append([]string{real}, tail...)...), nil
}

// commandAllowed reports whether the command's name token exactly matches an
// entry in the whitelist. The comparison is whole-token equality on argv[0].
func commandAllowed(whitelist []string, command string) bool {
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return false
	}
	for _, w := range whitelist {
		if tokens[0] == w {
			return true
		}
	}
	return false
}
