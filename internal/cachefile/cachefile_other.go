//go:build !unix

package cachefile

// Normalize is a no-op on platforms without Unix ownership semantics.
func Normalize(path string) error {
	return nil
}
