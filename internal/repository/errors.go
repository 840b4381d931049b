package repository

import "errors"

// ErrConflict возвращается, если раздел изменился между чтением и условной записью.
var ErrConflict = errors.New("partition changed concurrently")
