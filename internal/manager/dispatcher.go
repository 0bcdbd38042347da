package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/linfa/internal/lifecycle"
	"github.com/danmuck/linfa/internal/observability"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/danmuck/linfa/internal/protocol/frame"
	"github.com/danmuck/linfa/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Error reply messages sent to the controller.
const (
	MsgWrongPartCount       = "must be 2 parts message"
	MsgDefinitionWhileBusy  = "Cannot change tree while running"
	MsgRequestNotRecognized = "Request not recognized"
)

const requestLabelMalformed = "malformed"

// Versions answers the two version queries.
type Versions struct {
	Service  string
	Executor string
}

// Dispatcher turns one request message into its reply. It holds no
// transport and is driven by the server loop, one request at a time.
type Dispatcher struct {
	machine  *lifecycle.Machine
	defs     *DefinitionStore
	versions Versions
}

func NewDispatcher(machine *lifecycle.Machine, defs *DefinitionStore, versions Versions) *Dispatcher {
	return &Dispatcher{machine: machine, defs: defs, versions: versions}
}

// Handle validates and executes one request and returns the reply parts.
// It never fails: every problem becomes an error reply.
func (d *Dispatcher) Handle(parts [][]byte) [][]byte {
	start := time.Now()
	reply, label, result := d.handle(parts)
	observability.RecordControlRequest(label, result, time.Since(start))
	return reply
}

func (d *Dispatcher) handle(parts [][]byte) ([][]byte, string, string) {
	var first []byte
	if len(parts) > 0 {
		first = parts[0]
	}
	hdr, err := frame.DecodeHeader(first)
	if err != nil {
		log.Warn().Int("parts", len(parts)).Int("size", len(first)).Msg("manager.Dispatcher framing error")
		return frame.ErrorReply(nil, err.Error()), requestLabelMalformed, observability.ResultError
	}

	label := hdr.Type.String()
	if hdr.Protocol != protocol.Version {
		err := fmt.Errorf("%w: received %d, expected %d", protocol.ErrVersionMismatch, hdr.Protocol, protocol.Version)
		log.Warn().Err(err).Uint32("unique_id", hdr.UniqueID).Msg("manager.Dispatcher rejected request")
		msg := fmt.Sprintf("unsupported protocol version: received %d, expected %d", hdr.Protocol, protocol.Version)
		return frame.ErrorReply(&hdr, msg), label, observability.ResultError
	}

	if _, ok := schema.Lookup(hdr.Type); !ok {
		log.Warn().Uint8("type", uint8(hdr.Type)).Uint32("unique_id", hdr.UniqueID).Msg("manager.Dispatcher unrecognized request")
		return frame.ErrorReply(&hdr, MsgRequestNotRecognized), label, observability.ResultError
	}
	if err := schema.ValidateRequest(hdr.Type, len(parts)); err != nil {
		msg := err.Error()
		var ve schema.ValidationError
		if errors.As(err, &ve) {
			msg = ve.Reason
		}
		return frame.ErrorReply(&hdr, msg), label, observability.ResultError
	}

	reply := [][]byte{frame.EncodeHeader(frame.ReplyHeader(hdr))}
	switch hdr.Type {
	case protocol.GetStatus:
		return append(reply, []byte(d.machine.Load().String())), label, observability.ResultOK

	case protocol.Start, protocol.Stop, protocol.Pause, protocol.Resume:
		tr := d.machine.Apply(hdr.Type)
		if !tr.Changed {
			return reply, label, observability.ResultNoop
		}
		log.Info().
			Str("request", label).
			Uint32("unique_id", hdr.UniqueID).
			Str("transition", tr.String()).
			Msg("manager.Dispatcher applied request")
		return reply, label, observability.ResultOK

	case protocol.SetDefinition:
		if err := d.defs.Replace(d.machine, string(parts[1])); err != nil {
			log.Warn().Err(err).Uint32("unique_id", hdr.UniqueID).Msg("manager.Dispatcher definition rejected")
			return frame.ErrorReply(&hdr, MsgDefinitionWhileBusy), label, observability.ResultError
		}
		log.Info().Int("bytes", len(parts[1])).Uint32("unique_id", hdr.UniqueID).Msg("manager.Dispatcher definition replaced")
		return reply, label, observability.ResultOK

	case protocol.GetDefinition:
		return append(reply, []byte(d.defs.Load())), label, observability.ResultOK

	case protocol.GetServiceVersion:
		return append(reply, []byte(d.versions.Service)), label, observability.ResultOK

	case protocol.GetExecutorVersion:
		return append(reply, []byte(d.versions.Executor)), label, observability.ResultOK
	}

	return frame.ErrorReply(&hdr, MsgRequestNotRecognized), label, observability.ResultError
}
