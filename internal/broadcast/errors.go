package broadcast

import "errors"

// ErrMaxClients is returned when a new connection arrives while the
// client registry is already at its configured maximum.
var ErrMaxClients = errors.New("broadcast: max clients reached")
