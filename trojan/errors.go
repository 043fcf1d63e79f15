package trojan

import "errors"

// ErrNeedMore is returned by a wire decoder when the supplied buffer is a
// valid, well-formed prefix of some frame but does not yet contain a whole
// one. Callers parsing from a growing buffer must not treat this as a
// protocol violation.
var ErrNeedMore = errors.New("trojan: need more bytes")

// ErrMalformed is returned when a buffer can never be completed into a
// valid frame no matter how many more bytes arrive.
var ErrMalformed = errors.New("trojan: malformed frame")

// ErrUnsupported is returned for structurally valid but unsupported values,
// e.g. an unrecognised SOCKS5 command or address type.
var ErrUnsupported = errors.New("trojan: unsupported")
