package launcher

import "path/filepath"

// Resolve returns the executable path of a daemon: one subdirectory per
// platform under baseDir, with a .exe suffix on Windows. It does not check
// that the file exists.
func Resolve(baseDir, goos, name string) string {
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(baseDir, goos, name)
}
