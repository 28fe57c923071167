package socket

import "errors"

var (
	errClosedSocket  = errors.New("socket: connection closed")
	errSendQueueFull = errors.New("socket: outbound queue full")
)
