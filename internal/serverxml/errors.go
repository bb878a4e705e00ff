package serverxml

import "errors"

var (
	ErrMarkerNotFound = errors.New("marker not found")
)
