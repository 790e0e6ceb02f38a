package tcp

import (
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/bytestream"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/reassembler"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/seqnum"
)

// Receiver consumes SenderMessages from a peer's Sender, drives a
// Reassembler, and reports an ackno/window pair back.
type Receiver struct {
	re *reassembler.Reassembler
	w  bytestream.Writer
	r  bytestream.Reader

	isn    seqnum.Wrap32
	hasISN bool
}

// NewReceiver creates a Receiver that reassembles into stream.
func NewReceiver(stream *bytestream.ByteStream) *Receiver {
	w := stream.Writer()
	return &Receiver{
		re: reassembler.New(w),
		w:  w,
		r:  stream.Reader(),
	}
}

// Reader exposes the reassembled inbound stream for the application to
// drain.
func (rc *Receiver) Reader() bytestream.Reader { return rc.r }

// Receive processes one incoming segment from the peer's Sender.
func (rc *Receiver) Receive(msg SenderMessage) {
	if rc.w.HasError() {
		return
	}
	if msg.RST {
		rc.r.SetError()
		return
	}
	if !rc.hasISN {
		if !msg.SYN {
			return
		}
		rc.isn = msg.Seqno
		rc.hasISN = true
	}

	ckpt := rc.w.BytesPushed() + 1
	absseq := msg.Seqno.Unwrap(rc.isn, ckpt)

	var streamIdx uint64
	if msg.SYN {
		streamIdx = 0
	} else {
		streamIdx = absseq - 1
	}
	rc.re.Insert(streamIdx, msg.Payload, msg.FIN)
}

// Send produces the ReceiverMessage to report back to the peer's Sender.
func (rc *Receiver) Send() ReceiverMessage {
	var res ReceiverMessage
	if rc.hasISN {
		absseq := rc.w.BytesPushed() + 1
		if rc.w.IsClosed() {
			absseq++
		}
		res.Ackno = seqnum.Wrap(absseq, rc.isn)
		res.HasAckno = true
	}
	avail := rc.w.AvailableCapacity()
	if avail > 65535 {
		avail = 65535
	}
	res.WindowSize = uint16(avail)
	res.RST = rc.w.HasError()
	return res
}
