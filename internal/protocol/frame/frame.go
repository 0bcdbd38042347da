package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"

	"github.com/danmuck/linfa/internal/protocol"
)

// HeaderLen is the fixed size of request and reply headers.
const HeaderLen = 6

// ErrorTag is the literal first payload part of an error reply.
const ErrorTag = "error"

var (
	ErrShortBuffer   = errors.New("frame: destination shorter than header")
	ErrEmptyReply    = errors.New("frame: empty reply")
	ErrMissingHeader = errors.New("frame: reply carries no header")
)

// byteOrder is fixed for unique_id regardless of host architecture.
var byteOrder = binary.LittleEndian

// Header is the fixed wire header shared by requests and replies.
//
// Layout: protocol u8 | type u8 | unique_id u32 (little-endian).
type Header struct {
	UniqueID uint32
	Protocol uint8
	Type     protocol.RequestType
}

// SizeError reports a frame whose length is not HeaderLen.
type SizeError struct {
	Expected int
	Actual   int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("wrong request header: received size %d, expected size %d", e.Actual, e.Expected)
}

func (e *SizeError) Unwrap() error {
	return protocol.ErrFraming
}

// NewRequestHeader returns a header for t with a random unique id.
func NewRequestHeader(t protocol.RequestType) Header {
	return Header{
		UniqueID: rand.Uint32(),
		Protocol: protocol.Version,
		Type:     t,
	}
}

// ReplyHeader echoes the request id and type with the service protocol version.
func ReplyHeader(req Header) Header {
	req.Protocol = protocol.Version
	return req
}

// Matches reports whether h answers req.
func (h Header) Matches(req Header) bool {
	return h.UniqueID == req.UniqueID && h.Type == req.Type
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	_ = PutHeader(buf, h)
	return buf
}

// PutHeader writes h into dst, which must hold at least HeaderLen bytes.
func PutHeader(dst []byte, h Header) error {
	if len(dst) < HeaderLen {
		return ErrShortBuffer
	}
	dst[0] = h.Protocol
	dst[1] = byte(h.Type)
	byteOrder.PutUint32(dst[2:6], h.UniqueID)
	return nil
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, &SizeError{Expected: HeaderLen, Actual: len(b)}
	}
	return Header{
		Protocol: b[0],
		Type:     protocol.RequestType(b[1]),
		UniqueID: byteOrder.Uint32(b[2:6]),
	}, nil
}

// ErrorReply builds the error variant of a reply. The echoed header is
// prepended only when the request header could be decoded.
func ErrorReply(h *Header, msg string) [][]byte {
	parts := make([][]byte, 0, 3)
	if h != nil {
		parts = append(parts, EncodeHeader(ReplyHeader(*h)))
	}
	return append(parts, []byte(ErrorTag), []byte(msg))
}

// IsErrorReply reports whether parts is an error reply, with or without header.
func IsErrorReply(parts [][]byte) bool {
	_, ok := ErrorMessage(parts)
	return ok
}

// ErrorMessage extracts the message of an error reply.
func ErrorMessage(parts [][]byte) (string, bool) {
	switch {
	case len(parts) == 2 && string(parts[0]) == ErrorTag:
		return string(parts[1]), true
	case len(parts) == 3 && len(parts[0]) == HeaderLen && string(parts[1]) == ErrorTag:
		return string(parts[2]), true
	default:
		return "", false
	}
}

// SplitReply decodes the header part of a non-error reply and returns the
// remaining payload parts.
func SplitReply(parts [][]byte) (Header, [][]byte, error) {
	if len(parts) == 0 {
		return Header{}, nil, ErrEmptyReply
	}
	if len(parts[0]) != HeaderLen {
		return Header{}, nil, fmt.Errorf("%w: first part has %d bytes", ErrMissingHeader, len(parts[0]))
	}
	h, err := DecodeHeader(parts[0])
	if err != nil {
		return Header{}, nil, err
	}
	return h, parts[1:], nil
}
