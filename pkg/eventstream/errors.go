package eventstream

import "errors"

// ErrNilFactEvent indicates a nil event payload was provided to a publisher.
var ErrNilFactEvent = errors.New("nil fact event")
