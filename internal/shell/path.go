package shell

import (
	"os"
	"path/filepath"
	"strings"
)

// expandHome resolves a leading "~" against the user's home directory.
func expandHome(path string) string {
	return ExpandHome(path)
}

// ExpandHome resolves a leading "~" or "~/" against the user's home directory.
// Other paths are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
