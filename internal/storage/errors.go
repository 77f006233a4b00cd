package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDecrypt is returned when an encrypted profile field fails to open,
// usually because DATABASE_ENCRYPTION_KEY changed.
var ErrDecrypt = errors.New("storage: decrypt failed")
