package schema

import (
	"fmt"

	"github.com/danmuck/linfa/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Payload names what the parts after the header carry.
type Payload string

const (
	PayloadNone       Payload = "none"
	PayloadStatus     Payload = "status"
	PayloadDefinition Payload = "definition"
	PayloadVersion    Payload = "version"
)

// Requirement is the wire contract for one request type.
type Requirement struct {
	Type protocol.RequestType
	// RequestParts is the exact part count including the header, or 0 when
	// extra parts are tolerated.
	RequestParts int
	Reply        Payload
	Mutates      bool
}

type ValidationError struct {
	Type   protocol.RequestType
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("schema: request=%s: %s", e.Type, e.Reason)
}

var requirements = map[protocol.RequestType]Requirement{
	protocol.GetStatus:          {Type: protocol.GetStatus, Reply: PayloadStatus},
	protocol.Start:              {Type: protocol.Start, Reply: PayloadNone, Mutates: true},
	protocol.Stop:               {Type: protocol.Stop, Reply: PayloadNone, Mutates: true},
	protocol.Pause:              {Type: protocol.Pause, Reply: PayloadNone, Mutates: true},
	protocol.Resume:             {Type: protocol.Resume, Reply: PayloadNone, Mutates: true},
	protocol.SetDefinition:      {Type: protocol.SetDefinition, RequestParts: 2, Reply: PayloadNone, Mutates: true},
	protocol.GetDefinition:      {Type: protocol.GetDefinition, Reply: PayloadDefinition},
	protocol.GetServiceVersion:  {Type: protocol.GetServiceVersion, Reply: PayloadVersion},
	protocol.GetExecutorVersion: {Type: protocol.GetExecutorVersion, Reply: PayloadVersion},
}

// Lookup returns the requirement for t.
func Lookup(t protocol.RequestType) (Requirement, bool) {
	req, ok := requirements[t]
	return req, ok
}

// ValidateRequest checks the part count of a request of type t.
func ValidateRequest(t protocol.RequestType, parts int) error {
	req, ok := requirements[t]
	if !ok {
		return ValidationError{Type: t, Reason: "unknown request type"}
	}
	if req.RequestParts != 0 && parts != req.RequestParts {
		log.Debug().Str("request", t.String()).Int("parts", parts).Msg("schema.ValidateRequest part count mismatch")
		return ValidationError{Type: t, Reason: fmt.Sprintf("must be %d parts message", req.RequestParts)}
	}
	return nil
}

// ReplyParts is the part count of a successful reply, header included.
func (r Requirement) ReplyParts() int {
	if r.Reply == PayloadNone {
		return 1
	}
	return 2
}
