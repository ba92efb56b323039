package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// FileKey identifies the current content of path by hashing its name, size
// and modification time. Any rewrite of the file yields a new key.
func FileKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cache: stat %s: %w", path, err)
	}
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GetOrLoad returns the value cached for the current identity of path, calling
// load on a miss. Failed loads are not cached.
func GetOrLoad[V any](c *Cache[V], path string, load func() (V, error)) (V, error) {
	key, err := FileKey(path)
	if err != nil {
		var zero V
		return zero, err
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Put(key, path, v)
	return v, nil
}
