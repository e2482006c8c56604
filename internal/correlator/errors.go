package correlator

import "errors"

// ErrNoIDAvailable is returned by Install when every one of the 65 535
// usable proxy-ID slots (1-65535; 0 is a reserved sentinel) is occupied.
var ErrNoIDAvailable = errors.New("correlator: no proxy id available")
