package api

import "os"

func statPath(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
