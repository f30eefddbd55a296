//go:build !unix

package decisionlog

// lockFile is a no-op where flock is unavailable; only the in-process
// mutex serializes writers.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
