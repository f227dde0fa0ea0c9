//go:build cgo

package store

// The cgo SQLite driver, registered as "sqlite3", is available when the
// binary is built with cgo. snapshot.driver selects it.
import _ "github.com/mattn/go-sqlite3"
