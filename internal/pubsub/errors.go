package pubsub

import "errors"

// ErrClosed is returned by operations on a closed pub/sub instance
var ErrClosed = errors.New("pubsub: closed")
