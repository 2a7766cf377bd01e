package env

import (
	"os"
	"path/filepath"
)

// WorkDir returns the root of all scmpbuild scratch and output
// directories: <UserCacheDir>/.scmpbuild.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".scmpbuild"), nil
}

// OutDir returns the output directory for the given target matrix
// ("amd64-linux"), creating it with 0700 permissions if needed.
func OutDir(matrix string) (string, error) {
	work, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(work, "out", matrix)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// ScratchDir returns the directory where downloaded archives are kept
// and extracted, creating it with 0700 permissions if needed.
func ScratchDir() (string, error) {
	work, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(work, "src")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
