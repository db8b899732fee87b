package storage

import "os"

// EnsureDir creates the directory holding the device database. The ledger
// is private to the device user.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}
