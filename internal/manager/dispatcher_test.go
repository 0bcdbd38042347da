package manager

import (
	"strconv"
	"testing"

	"github.com/danmuck/linfa/internal/lifecycle"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/danmuck/linfa/internal/protocol/frame"
	"github.com/danmuck/linfa/internal/testutil/testlog"
)

func newTestDispatcher(definition string) (*Dispatcher, *lifecycle.Machine, *DefinitionStore) {
	machine := lifecycle.NewMachine()
	defs := NewDefinitionStore(definition)
	return NewDispatcher(machine, defs, Versions{Service: "svc-1", Executor: "exec-1"}), machine, defs
}

func request(t protocol.RequestType, id uint32, extra ...string) [][]byte {
	parts := [][]byte{frame.EncodeHeader(frame.Header{Protocol: protocol.Version, Type: t, UniqueID: id})}
	for _, e := range extra {
		parts = append(parts, []byte(e))
	}
	return parts
}

func mustReplyHeader(t *testing.T, reply [][]byte) frame.Header {
	t.Helper()
	if frame.IsErrorReply(reply) {
		msg, _ := frame.ErrorMessage(reply)
		t.Fatalf("unexpected error reply: %q", msg)
	}
	hdr, _, err := frame.SplitReply(reply)
	if err != nil {
		t.Fatalf("split reply: %v", err)
	}
	return hdr
}

func TestDispatcherStartFromIdleEchoesHeader(t *testing.T) {
	testlog.Start(t)
	d, machine, _ := newTestDispatcher("<root/>")

	reply := d.Handle(request(protocol.Start, 42))
	if len(reply) != 1 {
		t.Fatalf("expected header-only reply, got %d parts", len(reply))
	}
	hdr := mustReplyHeader(t, reply)
	want := frame.Header{Protocol: 2, Type: protocol.Start, UniqueID: 42}
	if hdr != want {
		t.Fatalf("reply header = %+v, want %+v", hdr, want)
	}
	if got := machine.Load(); got != protocol.StatusStarting {
		t.Fatalf("expected STARTING, got %s", got)
	}
}

func TestDispatcherSetDefinitionWhileRunningRejected(t *testing.T) {
	testlog.Start(t)
	d, machine, defs := newTestDispatcher("original")
	if _, err := machine.Set(protocol.StatusRunning); err != nil {
		t.Fatalf("set running: %v", err)
	}

	reply := d.Handle(request(protocol.SetDefinition, 7, "X"))
	msg, ok := frame.ErrorMessage(reply)
	if !ok || msg != MsgDefinitionWhileBusy {
		t.Fatalf("expected %q error, got %q (ok=%v)", MsgDefinitionWhileBusy, msg, ok)
	}
	hdr, err := frame.DecodeHeader(reply[0])
	if err != nil || hdr.UniqueID != 7 || hdr.Type != protocol.SetDefinition {
		t.Fatalf("error reply must echo header, got %+v err=%v", hdr, err)
	}
	if machine.Load() != protocol.StatusRunning {
		t.Fatalf("status changed to %s", machine.Load())
	}
	if defs.Load() != "original" {
		t.Fatalf("definition changed to %q", defs.Load())
	}
}

func TestDispatcherMalformedFrame(t *testing.T) {
	testlog.Start(t)
	d, machine, _ := newTestDispatcher("")

	reply := d.Handle([][]byte{{1, 2, 3, 4}})
	if len(reply) != 2 || string(reply[0]) != frame.ErrorTag {
		t.Fatalf("expected headerless error reply, got %q", reply)
	}
	want := "wrong request header: received size 4, expected size 6"
	if string(reply[1]) != want {
		t.Fatalf("unexpected message %q", reply[1])
	}
	if machine.Load() != protocol.StatusIdle {
		t.Fatalf("status changed to %s", machine.Load())
	}

	reply = d.Handle(nil)
	if msg, ok := frame.ErrorMessage(reply); !ok || msg != "wrong request header: received size 0, expected size 6" {
		t.Fatalf("unexpected empty-message reply %q", reply)
	}
}

func TestDispatcherVersionMismatchNeverMutates(t *testing.T) {
	testlog.Start(t)
	for _, v := range []uint8{0, 1, 3, 255} {
		d, machine, defs := newTestDispatcher("keep")
		for _, rt := range protocol.RequestTypes() {
			parts := [][]byte{frame.EncodeHeader(frame.Header{Protocol: v, Type: rt, UniqueID: 9})}
			if rt == protocol.SetDefinition {
				parts = append(parts, []byte("other"))
			}
			reply := d.Handle(parts)
			msg, ok := frame.ErrorMessage(reply)
			if !ok || len(reply) != 3 {
				t.Fatalf("version %d type %s: expected echoed error reply, got %q", v, rt, reply)
			}
			want := "unsupported protocol version: received " + strconv.Itoa(int(v)) + ", expected 2"
			if msg != want {
				t.Fatalf("unexpected message %q", msg)
			}
			hdr, _ := frame.DecodeHeader(reply[0])
			if hdr.Protocol != protocol.Version || hdr.UniqueID != 9 || hdr.Type != rt {
				t.Fatalf("unexpected echoed header %+v", hdr)
			}
		}
		if machine.Load() != protocol.StatusIdle || defs.Load() != "keep" {
			t.Fatalf("version %d mutated state: %s %q", v, machine.Load(), defs.Load())
		}
	}
}

func TestDispatcherEchoInvariant(t *testing.T) {
	testlog.Start(t)
	d, _, _ := newTestDispatcher("def")
	for i, rt := range protocol.RequestTypes() {
		id := uint32(1000 + i)
		parts := request(rt, id)
		if rt == protocol.SetDefinition {
			parts = request(rt, id, "new")
		}
		reply := d.Handle(parts)
		hdr, err := frame.DecodeHeader(reply[0])
		if err != nil {
			t.Fatalf("%s: decode reply header: %v", rt, err)
		}
		if hdr.UniqueID != id || hdr.Type != rt || hdr.Protocol != protocol.Version {
			t.Fatalf("%s: reply header %+v does not echo id %d", rt, hdr, id)
		}
	}
}

func TestDispatcherQueries(t *testing.T) {
	testlog.Start(t)
	d, _, _ := newTestDispatcher("<tree/>")

	cases := []struct {
		req  protocol.RequestType
		want string
	}{
		{protocol.GetStatus, "IDLE"},
		{protocol.GetDefinition, "<tree/>"},
		{protocol.GetServiceVersion, "svc-1"},
		{protocol.GetExecutorVersion, "exec-1"},
	}
	for _, tc := range cases {
		reply := d.Handle(request(tc.req, 5))
		mustReplyHeader(t, reply)
		if len(reply) != 2 || string(reply[1]) != tc.want {
			t.Fatalf("%s: expected payload %q, got %q", tc.req, tc.want, reply)
		}
	}
}

func TestDispatcherSetDefinitionGuards(t *testing.T) {
	testlog.Start(t)
	d, _, defs := newTestDispatcher("old")

	reply := d.Handle(request(protocol.SetDefinition, 1))
	if msg, ok := frame.ErrorMessage(reply); !ok || msg != MsgWrongPartCount {
		t.Fatalf("expected part-count error, got %q", reply)
	}
	reply = d.Handle(request(protocol.SetDefinition, 2, "a", "b"))
	if msg, ok := frame.ErrorMessage(reply); !ok || msg != MsgWrongPartCount {
		t.Fatalf("expected part-count error, got %q", reply)
	}
	if defs.Load() != "old" {
		t.Fatalf("definition changed to %q", defs.Load())
	}

	reply = d.Handle(request(protocol.SetDefinition, 3, "new"))
	mustReplyHeader(t, reply)
	if len(reply) != 1 {
		t.Fatalf("expected header-only ack, got %d parts", len(reply))
	}
	if defs.Load() != "new" {
		t.Fatalf("expected new definition, got %q", defs.Load())
	}
}

func TestDispatcherUnrecognizedRequest(t *testing.T) {
	testlog.Start(t)
	d, machine, _ := newTestDispatcher("")
	for _, rt := range []protocol.RequestType{protocol.Undefined, 'Z', 'x'} {
		reply := d.Handle(request(rt, 11))
		msg, ok := frame.ErrorMessage(reply)
		if !ok || msg != MsgRequestNotRecognized || len(reply) != 3 {
			t.Fatalf("type %d: expected unrecognized error, got %q", rt, reply)
		}
	}
	if machine.Load() != protocol.StatusIdle {
		t.Fatalf("status changed to %s", machine.Load())
	}
}

func TestDispatcherInvalidTransitionIsSilent(t *testing.T) {
	testlog.Start(t)
	d, machine, _ := newTestDispatcher("")
	reply := d.Handle(request(protocol.Pause, 3))
	if frame.IsErrorReply(reply) || len(reply) != 1 {
		t.Fatalf("expected plain ack for no-op, got %q", reply)
	}
	if machine.Load() != protocol.StatusIdle {
		t.Fatalf("status changed to %s", machine.Load())
	}
}
