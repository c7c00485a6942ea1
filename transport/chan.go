package transport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// SessionKey identifies one session across reconnects, generalizing the
// dialogue_id concept from original_source/src/transport/channel.rs.
type SessionKey [16]byte

// NewSessionKey generates a random SessionKey.
func NewSessionKey() (SessionKey, error) {
	var k SessionKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, err
	}
	return k, nil
}

func (k SessionKey) String() string { return hex.EncodeToString(k[:]) }

// Choice is a branch index sent over the MsgChoice type, selecting one of
// the dispatcher's top-level protocols (SPEC_FULL.md §4.I: 0=Parameters,
// 1=Pay, 2=Establish, 3=Close).
type Choice uint8

const (
	ChoiceParameters Choice = 0
	ChoicePay        Choice = 1
	ChoiceEstablish  Choice = 2
	ChoiceClose      Choice = 3
)

// AbortReason is the payload of a MsgAbort: a UTF-8 explanation of why one
// side terminated the session early.
type AbortReason string

// Chan is a bidirectional, ordered, length-delimited session channel. Each
// side knows, from the protocol it is currently running, what message type
// it expects to Send or Recv next; Chan enforces this dynamically rather
// than encoding it in Go's type system (DESIGN.md Open Question 1).
type Chan struct {
	rw  io.ReadWriter
	key SessionKey

	mu     sync.Mutex
	closed bool
}

// NewChan wraps rw (typically a net.Conn) as a session Chan under key.
func NewChan(rw io.ReadWriter, key SessionKey) *Chan {
	return &Chan{rw: rw, key: key}
}

// Key returns the session's identifying key, used to resume a dropped
// connection against the same logical session.
func (c *Chan) Key() SessionKey { return c.key }

// Send writes msg to the channel.
func (c *Chan) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("transport: send on closed channel")
	}
	return WriteMessage(c.rw, msg)
}

// Recv reads the next message and type-asserts it into want, a pointer to
// a concrete Message type (e.g. &EstablishProofMsg{}). If the received
// message is of a different type, Recv returns ErrUnexpectedMessage
// without consuming want's contents.
func (c *Chan) Recv(want Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("transport: recv on closed channel")
	}
	msg, err := ReadMessage(c.rw)
	if err != nil {
		return err
	}
	if msg.MsgType() != want.MsgType() {
		return fmt.Errorf("%w: expected %v, got %v", ErrUnexpectedMessage, want.MsgType(), msg.MsgType())
	}
	return copyMessage(want, msg)
}

// copyMessage moves the freshly-decoded msg's contents into dst. Both
// arguments share the same concrete type (guaranteed by the MsgType check
// in Recv), so a decode-into-dst round trip transfers the fields without
// requiring reflection.
func copyMessage(dst, src Message) error {
	switch d := dst.(type) {
	case *EstablishRequest:
		*d = *src.(*EstablishRequest)
	case *MerchantRandomnessMsg:
		*d = *src.(*MerchantRandomnessMsg)
	case *EstablishProofMsg:
		*d = *src.(*EstablishProofMsg)
	case *ClosingSignatureMsg:
		*d = *src.(*ClosingSignatureMsg)
	case *PayTokenMsg:
		*d = *src.(*PayTokenMsg)
	case *PayRequest:
		*d = *src.(*PayRequest)
	case *StartMessageMsg:
		*d = *src.(*StartMessageMsg)
	case *LockMessageMsg:
		*d = *src.(*LockMessageMsg)
	case *CloseRequest:
		*d = *src.(*CloseRequest)
	case *MutualCloseAuthMsg:
		*d = *src.(*MutualCloseAuthMsg)
	case *ParametersMsg:
		*d = *src.(*ParametersMsg)
	default:
		return fmt.Errorf("transport: unhandled message type %T", dst)
	}
	return nil
}

// choiceMessage is the MsgChoice payload: a single branch-selecting byte.
type choiceMessage struct {
	Choice Choice
}

func (*choiceMessage) MsgType() MessageType { return MsgChoice }
func (m *choiceMessage) Encode(w io.Writer) error {
	_, err := w.Write([]byte{byte(m.Choice)})
	return err
}
func (m *choiceMessage) Decode(r io.Reader) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	m.Choice = Choice(b[0])
	return nil
}

// abortMessage is the MsgAbort payload: a protocol-specific numeric kind
// (interpreted by the calling protocol package) plus a human-readable
// reason string.
type abortMessage struct {
	Kind   uint8
	Reason AbortReason
}

func (*abortMessage) MsgType() MessageType { return MsgAbort }
func (m *abortMessage) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{m.Kind}); err != nil {
		return err
	}
	return writeBytes(w, []byte(m.Reason))
}
func (m *abortMessage) Decode(r io.Reader) error {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return err
	}
	m.Kind = kind[0]
	b, err := readBytes(r)
	if err != nil {
		return err
	}
	m.Reason = AbortReason(b)
	return nil
}

// Choose sends a branch selection, starting one of the top-level
// protocols (spec.md §4.I).
func (c *Chan) Choose(choice Choice) error {
	return c.Send(&choiceMessage{Choice: choice})
}

// OfferChoice receives the next branch selection. It also accepts an abort
// in place of a choice, returning ok=false in that case so the caller can
// tear the session down without erroring.
func (c *Chan) OfferChoice() (choice Choice, ok bool, err error) {
	c.mu.Lock()
	msg, err := ReadMessage(c.rw)
	c.mu.Unlock()
	if err != nil {
		return 0, false, err
	}
	switch m := msg.(type) {
	case *choiceMessage:
		return m.Choice, true, nil
	case *abortMessage:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: expected choice or abort, got %v", ErrUnexpectedMessage, msg.MsgType())
	}
}

// Abort sends an abort with a protocol-specific kind code and
// human-readable reason to the peer, unwinding the current protocol run
// (spec.md §4.E abort primitive).
func (c *Chan) Abort(kind uint8, reason AbortReason) error {
	return c.Send(&abortMessage{Kind: kind, Reason: reason})
}

// SendContinue sends the "1 = continue" half of the abort/continue tag
// described in spec.md §4.E.
func (c *Chan) SendContinue() error {
	return c.Send(&choiceMessage{Choice: 1})
}

// RecvContinueOrAbort reads the next abort/continue tag. If the peer
// aborted, ok is false and abortKind/abortReason carry the peer-supplied
// detail; otherwise ok is true.
func (c *Chan) RecvContinueOrAbort() (ok bool, abortKind uint8, abortReason AbortReason, err error) {
	c.mu.Lock()
	msg, err := ReadMessage(c.rw)
	c.mu.Unlock()
	if err != nil {
		return false, 0, "", err
	}
	switch m := msg.(type) {
	case *choiceMessage:
		return true, 0, "", nil
	case *abortMessage:
		return false, m.Kind, m.Reason, nil
	default:
		return false, 0, "", fmt.Errorf("%w: expected continue or abort, got %v", ErrUnexpectedMessage, msg.MsgType())
	}
}

// RecvOrAbort reads the next message, which is expected to be either want's
// type or an abort. If the peer aborted, ok is false and abortKind/
// abortReason carry the peer-supplied detail; otherwise ok is true and
// want is populated.
func (c *Chan) RecvOrAbort(want Message) (ok bool, abortKind uint8, abortReason AbortReason, err error) {
	c.mu.Lock()
	msg, err := ReadMessage(c.rw)
	c.mu.Unlock()
	if err != nil {
		return false, 0, "", err
	}
	if a, isAbort := msg.(*abortMessage); isAbort {
		return false, a.Kind, a.Reason, nil
	}
	if msg.MsgType() != want.MsgType() {
		return false, 0, "", fmt.Errorf("%w: expected %v or abort, got %v", ErrUnexpectedMessage, want.MsgType(), msg.MsgType())
	}
	if err := copyMessage(want, msg); err != nil {
		return false, 0, "", err
	}
	return true, 0, "", nil
}

// Close marks the channel closed. If the underlying rw is also an
// io.Closer, it is closed too.
func (c *Chan) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
