// Package tcp implements the reliable-byte-stream transport logic: a
// Sender that segments an outgoing ByteStream with retransmission and
// flow control, and a Receiver that feeds incoming segments through a
// Reassembler and reports acks and window size. Congestion control is
// explicitly out of scope; flow control (the advertised window) is all
// that throttles the sender.
package tcp

import "github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/seqnum"

// MaxPayloadSize bounds how many payload bytes a single outgoing segment
// carries.
const MaxPayloadSize = 1000

// MaxRetransmissionAttempts is the number of consecutive backed-off
// retransmissions after which a connection is considered failed.
const MaxRetransmissionAttempts = 8

// SenderMessage is an outgoing TCP segment in the sender's simplified
// model: a sequence number, optional SYN/FIN/RST control bits, and a
// payload. No options, no urgent pointer.
type SenderMessage struct {
	Seqno   seqnum.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength is how many sequence-space slots this message occupies:
// one for SYN, one per payload byte, one for FIN.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is the receiver's feedback to the sender: the next
// expected sequence number (absent until a SYN has been seen), the
// receiver's advertised window, and an RST bit.
type ReceiverMessage struct {
	Ackno      seqnum.Wrap32
	HasAckno   bool
	WindowSize uint16
	RST        bool
}
