package protocol

import (
	"fmt"
	"strings"
)

// Version is the only protocol version the service accepts and the value forced
// into every reply header.
const Version uint8 = 2

// RequestType is the one-byte ASCII command code carried in every header.
type RequestType uint8

const (
	Undefined          RequestType = 0
	GetStatus          RequestType = 'G'
	Start              RequestType = 'S'
	Stop               RequestType = 's'
	Pause              RequestType = 'P'
	Resume             RequestType = 'p'
	SetDefinition      RequestType = 'D'
	GetDefinition      RequestType = 'd'
	GetServiceVersion  RequestType = 'V'
	GetExecutorVersion RequestType = 'E'
)

var requestNames = map[RequestType]string{
	GetStatus:          "status",
	Start:              "start",
	Stop:               "stop",
	Pause:              "pause",
	Resume:             "resume",
	SetDefinition:      "set_definition",
	GetDefinition:      "get_definition",
	GetServiceVersion:  "service_version",
	GetExecutorVersion: "executor_version",
}

// RequestTypes lists every sendable request type in wire-code order of declaration.
func RequestTypes() []RequestType {
	return []RequestType{
		GetStatus,
		Start,
		Stop,
		Pause,
		Resume,
		SetDefinition,
		GetDefinition,
		GetServiceVersion,
		GetExecutorVersion,
	}
}

// Valid reports whether t is a member of the closed, sendable request set.
func (t RequestType) Valid() bool {
	_, ok := requestNames[t]
	return ok
}

func (t RequestType) String() string {
	if name, ok := requestNames[t]; ok {
		return name
	}
	return "undefined"
}

// ParseRequestType maps a request name back to its type.
func ParseRequestType(name string) (RequestType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for t, n := range requestNames {
		if n == key {
			return t, nil
		}
	}
	return Undefined, fmt.Errorf("%w: %q", ErrUnrecognizedRequest, name)
}

// Status is the executor lifecycle state.
type Status uint8

const (
	StatusIdle     Status = 'I'
	StatusStarting Status = 'S'
	StatusRunning  Status = 'R'
	StatusPaused   Status = 'P'
	StatusStopping Status = 's'
)

var statusNames = map[Status]string{
	StatusIdle:     "IDLE",
	StatusStarting: "STARTING",
	StatusRunning:  "RUNNING",
	StatusPaused:   "PAUSED",
	StatusStopping: "STOPPING",
}

// Statuses lists every lifecycle state.
func Statuses() []Status {
	return []Status{StatusIdle, StatusStarting, StatusRunning, StatusPaused, StatusStopping}
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// String returns the wire string sent in GET_STATUS replies.
func (s Status) String() string {
	return statusNames[s]
}

// ParseStatus maps a wire string back to its status.
func ParseStatus(raw string) (Status, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	for s, n := range statusNames {
		if n == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown status %q", raw)
}
