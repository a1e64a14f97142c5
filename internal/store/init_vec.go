//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver
	// so the sqlite3 backend ranks in SQL instead of in Go.
	vec.Auto()
	distanceFuncs["sqlite3"] = "vec_distance_cosine"
}
