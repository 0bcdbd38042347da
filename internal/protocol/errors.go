package protocol

import "errors"

var (
	ErrFraming                  = errors.New("protocol: wrong request header size")
	ErrVersionMismatch          = errors.New("protocol: unsupported protocol version")
	ErrUnrecognizedRequest      = errors.New("protocol: request not recognized")
	ErrIllegalDefinitionReplace = errors.New("protocol: illegal definition replace")
	ErrSendTimeout              = errors.New("protocol: send timeout")
)
