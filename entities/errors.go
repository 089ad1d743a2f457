package entities

import "errors"

var ErrBlockNotFound = errors.New("block not found")
