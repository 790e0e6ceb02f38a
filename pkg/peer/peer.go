// Package peer provides the glue layer the spec's budget table calls
// "TCPPeer, adapters": a paired tcp.Sender/tcp.Receiver sharing one
// connection's ISN space, and a codec between tcp's Wrap32-typed messages
// and wire's byte-level TCP headers.
//
// Grounded in original_source/src/tcp_receiver/tcp_receiver.hh's
// reader()/writer()/send()/receive() accessor pattern, and in the teacher's
// tcpBridge/tcpFlow pairing (pkg/socket/tcp_bridge.go) for the
// logging-instrumented, single-struct-per-flow shape.
package peer

import (
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/bytestream"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/logging"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/seqnum"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/tcp"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/wire"
)

// TCPPeer couples one tcp.Sender and one tcp.Receiver, the two halves of a
// single TCP connection sharing an ISN space.
type TCPPeer struct {
	flow string

	sender   *tcp.Sender
	receiver *tcp.Receiver
}

// Config bundles the tunables of spec §6.2 used to construct a TCPPeer.
type Config struct {
	ISN             seqnum.Wrap32
	InitialRTOms    uint64
	RecvCapacity    uint64
	SendCapacity    uint64
}

// New creates a TCPPeer identified by flow (used only for log correlation),
// with separate inbound/outbound ByteStreams sized per cfg.
func New(flow string, cfg Config) *TCPPeer {
	outgoing := bytestream.New(cfg.SendCapacity)
	incoming := bytestream.New(cfg.RecvCapacity)
	p := &TCPPeer{
		flow:     flow,
		sender:   tcp.NewSender(outgoing, cfg.ISN, cfg.InitialRTOms),
		receiver: tcp.NewReceiver(incoming),
	}
	logging.DebugWithFields(logging.FlowFields(flow), "tcp peer created")
	return p
}

// Outbound exposes the writer half of this peer's outgoing stream, for the
// application to push bytes into.
func (p *TCPPeer) Outbound() bytestream.Writer { return p.sender.Writer() }

// Inbound exposes the reader half of this peer's incoming stream, for the
// application to drain reassembled bytes from.
func (p *TCPPeer) Inbound() bytestream.Reader { return p.receiver.Reader() }

// Send drains the outgoing stream into segments, handing each to transmit,
// per tcp.Sender.Push.
func (p *TCPPeer) Send(transmit tcp.Transmit) {
	p.sender.Push(transmit)
}

// Receive processes one inbound segment from the peer's sender (data path).
// It does not send anything back; the resulting ack is read with Ack and
// carried to the remote peer by the embedder (over the wire, via
// SegmentCodec).
func (p *TCPPeer) Receive(msg tcp.SenderMessage) {
	p.receiver.Receive(msg)
}

// ReceiveAck processes one inbound ReceiverMessage (ack/window update) from
// the peer.
func (p *TCPPeer) ReceiveAck(msg tcp.ReceiverMessage) {
	p.sender.Receive(msg)
}

// Ack produces the ReceiverMessage to send back to the peer describing
// this side's reassembly progress and window.
func (p *TCPPeer) Ack() tcp.ReceiverMessage {
	return p.receiver.Send()
}

// Tick advances the sender's retransmission timer by msSinceLastTick,
// retransmitting via transmit if the RTO has expired. The receiver has no
// timer.
func (p *TCPPeer) Tick(msSinceLastTick uint64, transmit tcp.Transmit) {
	p.sender.Tick(msSinceLastTick, transmit)
}

// Failed reports whether this peer's sender has exceeded
// tcp.MaxRetransmissionAttempts consecutive retransmissions and should be
// considered a failed connection.
func (p *TCPPeer) Failed() bool {
	failed := p.sender.ConsecutiveRetransmissions() > tcp.MaxRetransmissionAttempts
	if failed {
		logging.WarnWithFields(logging.FlowFields(p.flow), "connection failed after %d consecutive retransmissions", p.sender.ConsecutiveRetransmissions())
	}
	return failed
}

// SegmentCodec converts between tcp.Sender/Receiver messages (Wrap32-typed,
// in-memory) and wire.TCPSegment (byte-level, IPv4-pseudo-header
// checksummed) — the "wire codec consumed from collaborators" of the
// spec's adapter contract, concretely implemented since nothing in the
// retrieved pack ships a drop-in TCP/IP header codec import.
type SegmentCodec struct {
	SourcePort uint16
	DestPort   uint16
	SourceIP   [4]byte
	DestIP     [4]byte
}

// Encode converts an outgoing SenderMessage plus the current ack/window (as
// reported by the local Receiver) into a wire.TCPSegment ready for
// transmission.
func (c SegmentCodec) Encode(msg tcp.SenderMessage, ack tcp.ReceiverMessage) wire.TCPSegment {
	var flags uint8
	if msg.SYN {
		flags |= wire.TCPFlagSYN
	}
	if msg.FIN {
		flags |= wire.TCPFlagFIN
	}
	if msg.RST {
		flags |= wire.TCPFlagRST
	}
	var ackno uint32
	if ack.HasAckno {
		flags |= wire.TCPFlagACK
		ackno = uint32(ack.Ackno)
	}

	seg := wire.TCPSegment{
		Header: wire.TCPHeader{
			SourcePort: c.SourcePort,
			DestPort:   c.DestPort,
			Seqno:      uint32(msg.Seqno),
			Ackno:      ackno,
			Flags:      flags,
			Window:     ack.WindowSize,
		},
		Payload: msg.Payload,
	}
	seg.Header.Checksum = seg.CalculateChecksum(c.SourceIP, c.DestIP)
	return seg
}

// Decode splits a wire.TCPSegment back into the SenderMessage (data/SYN/
// FIN/RST) and ReceiverMessage (ack/window/RST) halves tcp.Sender and
// tcp.Receiver expect.
func (c SegmentCodec) Decode(seg wire.TCPSegment) (tcp.SenderMessage, tcp.ReceiverMessage) {
	h := seg.Header
	sm := tcp.SenderMessage{
		Seqno:   seqnum.Wrap32(h.Seqno),
		SYN:     h.Flags&wire.TCPFlagSYN != 0,
		Payload: seg.Payload,
		FIN:     h.Flags&wire.TCPFlagFIN != 0,
		RST:     h.Flags&wire.TCPFlagRST != 0,
	}
	rm := tcp.ReceiverMessage{
		WindowSize: h.Window,
		RST:        h.Flags&wire.TCPFlagRST != 0,
	}
	if h.Flags&wire.TCPFlagACK != 0 {
		rm.Ackno = seqnum.Wrap32(h.Ackno)
		rm.HasAckno = true
	}
	return sm, rm
}
