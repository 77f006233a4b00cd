package model

import "errors"

// ErrValidation marks caller input errors. The HTTP layer maps it to 400.
var ErrValidation = errors.New("model: validation failed")
