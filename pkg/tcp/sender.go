package tcp

import (
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/bytestream"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/seqnum"
)

// Transmit is called by Push and Tick to hand an outgoing segment to
// whatever is actually putting bytes on the wire. Keeping this a
// caller-supplied callback, rather than a channel or a direct write, lets
// the embedder choose synchronous send vs. queueing without the Sender
// needing to know which.
type Transmit func(SenderMessage)

// Sender segments an outgoing ByteStream into SenderMessages, retransmits
// on timeout with exponential backoff, and tracks the peer's advertised
// window. It has no notion of congestion control: only the peer's window
// throttles it.
type Sender struct {
	stream *bytestream.ByteStream
	w      bytestream.Writer
	r      bytestream.Reader

	isn          seqnum.Wrap32
	initialRTOms uint64
	timer        retransmissionTimer

	synSent bool
	finSent bool

	outstandingBytes uint64
	retransmissions  uint64

	windowSize   uint16
	nextAbsSeq   uint64
	ackAbsSeq    uint64
	outstanding  []SenderMessage
}

// NewSender creates a Sender that reads from stream, starting at
// sequence number isn, with the given initial retransmission timeout.
func NewSender(stream *bytestream.ByteStream, isn seqnum.Wrap32, initialRTOms uint64) *Sender {
	return &Sender{
		stream:       stream,
		w:            stream.Writer(),
		r:            stream.Reader(),
		isn:          isn,
		initialRTOms: initialRTOms,
		timer:        newRetransmissionTimer(initialRTOms),
		windowSize:   1,
	}
}

// Writer exposes the outgoing stream so the application can push bytes
// into it.
func (s *Sender) Writer() bytestream.Writer { return s.w }

// SequenceNumbersInFlight is how many sequence numbers are currently
// unacknowledged.
func (s *Sender) SequenceNumbersInFlight() uint64 { return s.outstandingBytes }

// ConsecutiveRetransmissions is how many backed-off retransmissions have
// happened since the last new ack.
func (s *Sender) ConsecutiveRetransmissions() uint64 { return s.retransmissions }

func (s *Sender) makeEmptyMessage() SenderMessage {
	return SenderMessage{
		Seqno: seqnum.Wrap(s.nextAbsSeq, s.isn),
		RST:   s.r.HasError(),
	}
}

// Push reads from the outgoing stream and transmits as many segments as
// the peer's window currently allows, starting the retransmission timer
// on the first segment sent.
func (s *Sender) Push(transmit Transmit) {
	maxWindow := uint64(s.windowSize)
	if maxWindow == 0 {
		maxWindow = 1 // one-byte zero-window probing
	}

	for maxWindow > s.outstandingBytes && !s.finSent {
		msg := s.makeEmptyMessage()

		if !s.synSent {
			msg.SYN = true
			s.synSent = true
		}

		remains := maxWindow - s.outstandingBytes
		payloadSize := MaxPayloadSize
		if room := remains - msg.SequenceLength(); uint64(payloadSize) > room {
			payloadSize = int(room)
		}
		if payloadSize > 0 {
			msg.Payload = bytestream.Read(s.r, uint64(payloadSize))
		}

		if !s.finSent && remains > msg.SequenceLength() && s.r.IsFinished() {
			msg.FIN = true
			s.finSent = true
		}

		if msg.SequenceLength() == 0 {
			break
		}

		transmit(msg)

		if !s.timer.isActive() {
			s.timer.start()
		}

		s.nextAbsSeq += msg.SequenceLength()
		s.outstandingBytes += msg.SequenceLength()
		s.outstanding = append(s.outstanding, msg)
	}
}

// Receive processes an incoming ReceiverMessage: updates the advertised
// window and, if it carries a new ackno, retires acknowledged segments
// and resets the retransmission timer.
func (s *Sender) Receive(msg ReceiverMessage) {
	if s.w.HasError() {
		return
	}
	if msg.RST {
		s.w.SetError()
		return
	}

	s.windowSize = msg.WindowSize

	if !msg.HasAckno {
		return
	}
	recvAckAbsSeq := msg.Ackno.Unwrap(s.isn, s.nextAbsSeq)
	if recvAckAbsSeq > s.nextAbsSeq {
		return
	}

	acked := false
	for len(s.outstanding) > 0 {
		head := s.outstanding[0]
		if s.ackAbsSeq+head.SequenceLength() > recvAckAbsSeq {
			break
		}
		acked = true
		s.ackAbsSeq += head.SequenceLength()
		s.outstandingBytes -= head.SequenceLength()
		s.outstanding = s.outstanding[1:]
	}

	if acked {
		s.retransmissions = 0
		s.timer.reload(s.initialRTOms)
		if len(s.outstanding) == 0 {
			s.timer.stop()
		} else {
			s.timer.start()
		}
	}
}

// Tick advances msSinceLastTick of wall-clock time. If the retransmission
// timer expires with unacknowledged segments outstanding, the oldest one
// is retransmitted; the timer backs off exponentially unless the peer is
// currently advertising a zero window, in which case the retransmit is
// treated as probing and the RTO is left alone.
func (s *Sender) Tick(msSinceLastTick uint64, transmit Transmit) {
	if s.timer.tick(msSinceLastTick).isExpired() && len(s.outstanding) > 0 {
		transmit(s.outstanding[0])

		if s.windowSize != 0 {
			s.retransmissions++
			s.timer.exponentialBackoff()
		}

		s.timer.reset()
	}
}
