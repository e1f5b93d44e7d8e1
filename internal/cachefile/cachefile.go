// Package cachefile resets ownership and permissions of a cache file that a
// previous privileged run may have left writable for everyone.
package cachefile

import "os"

// Mode is the permission applied to the cache file.
const Mode os.FileMode = 0o644
