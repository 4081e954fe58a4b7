// Package store persists drawdown defense inputs and results in PostgreSQL.
package store

import "errors"

// ErrNotFound no stored run (or symbol in the latest run)
var ErrNotFound = errors.New("not found")
