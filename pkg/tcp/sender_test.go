package tcp

import (
	"testing"

	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/bytestream"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/seqnum"
	"github.com/stretchr/testify/assert"
)

func newTestSender(isn uint32, initialRTOms uint64) *Sender {
	stream := bytestream.New(4000)
	return NewSender(stream, seqnum.Wrap32(isn), initialRTOms)
}

func ackFullWindow(windowSize uint16) ReceiverMessage {
	return ReceiverMessage{WindowSize: windowSize}
}

// TestRetransmitOnRTOExpiry mirrors the original's retransmission scenario:
// a segment that goes unacknowledged is retransmitted exactly when the
// retransmission timer reaches the initial RTO, not before.
func TestRetransmitOnRTOExpiry(t *testing.T) {
	s := newTestSender(0, 1000)
	s.Receive(ackFullWindow(4000))
	s.Writer().Push([]byte("hello"))
	s.Writer().Close()

	var sent []SenderMessage
	s.Push(func(m SenderMessage) { sent = append(sent, m) })
	assert.Len(t, sent, 1)
	first := sent[0]

	var retransmitted []SenderMessage
	transmit := func(m SenderMessage) { retransmitted = append(retransmitted, m) }

	s.Tick(999, transmit)
	assert.Empty(t, retransmitted, "should not retransmit before RTO elapses")
	assert.Equal(t, uint64(0), s.ConsecutiveRetransmissions())

	s.Tick(1, transmit)
	assert.Len(t, retransmitted, 1, "should retransmit exactly at RTO")
	assert.Equal(t, first.Seqno, retransmitted[0].Seqno)
	assert.Equal(t, first.Payload, retransmitted[0].Payload)
	assert.Equal(t, uint64(1), s.ConsecutiveRetransmissions())
}

// TestExponentialBackoffDoublesRTO checks that each consecutive retransmit
// doubles the timeout before the next one fires, per tcp_sender.cpp's
// RetransmissionTimer::exponential_backoff.
func TestExponentialBackoffDoublesRTO(t *testing.T) {
	s := newTestSender(0, 1000)
	s.Receive(ackFullWindow(4000))
	s.Writer().Push([]byte("data"))
	s.Writer().Close()

	var count int
	transmit := func(m SenderMessage) { count++ }
	s.Push(transmit)
	count = 0

	s.Tick(1000, transmit)
	assert.Equal(t, 1, count, "first retransmit at 1x RTO")
	assert.Equal(t, uint64(1), s.ConsecutiveRetransmissions())

	s.Tick(1000, transmit)
	assert.Equal(t, 1, count, "no retransmit yet: RTO has doubled to 2000ms")

	s.Tick(1000, transmit)
	assert.Equal(t, 2, count, "second retransmit once the doubled RTO elapses")
	assert.Equal(t, uint64(2), s.ConsecutiveRetransmissions())

	s.Tick(2000, transmit)
	assert.Equal(t, 2, count, "no retransmit yet: RTO has doubled again to 4000ms")
	s.Tick(2000, transmit)
	assert.Equal(t, 3, count)
	assert.Equal(t, uint64(3), s.ConsecutiveRetransmissions())
}

// TestRetransmissionCountResetsOnNewAck confirms a fresh ack clears the
// consecutive-retransmission counter and, once nothing is outstanding,
// stops the retransmission timer.
func TestRetransmissionCountResetsOnNewAck(t *testing.T) {
	s := newTestSender(0, 1000)
	s.Receive(ackFullWindow(4000))
	s.Writer().Push([]byte("data"))
	s.Writer().Close()

	var count int
	transmit := func(m SenderMessage) { count++ }
	s.Push(transmit)
	count = 0

	s.Tick(1000, transmit) // retransmit #1, RTO backs off to 2000ms
	assert.Equal(t, uint64(1), s.ConsecutiveRetransmissions())

	ackMsg := ReceiverMessage{
		// SYN(1) + "data"(4) + FIN(1) = 6 sequence numbers consumed; a
		// cumulative ack of 6 acknowledges the whole outstanding segment.
		Ackno:      seqnum.Wrap(1+uint64(len("data"))+1, seqnum.Wrap32(0)),
		HasAckno:   true,
		WindowSize: 4000,
	}
	s.Receive(ackMsg)
	assert.Equal(t, uint64(0), s.ConsecutiveRetransmissions())

	// Sender has nothing left outstanding (SYN+data+FIN all acked), so the
	// timer should be stopped and ticking further must not retransmit.
	count = 0
	s.Tick(5000, transmit)
	assert.Equal(t, 0, count)
}

// TestConnectionFailsAfterMaxRetransmissionAttempts drives enough
// consecutive RTO expiries to cross MaxRetransmissionAttempts, the
// threshold TCPPeer.Failed checks.
func TestConnectionFailsAfterMaxRetransmissionAttempts(t *testing.T) {
	s := newTestSender(0, 1000)
	s.Receive(ackFullWindow(4000))
	s.Writer().Push([]byte("x"))
	s.Writer().Close()

	noop := func(SenderMessage) {}
	s.Push(noop)

	rto := uint64(1000)
	for i := 0; i <= MaxRetransmissionAttempts; i++ {
		s.Tick(rto, noop)
		rto <<= 1
	}

	assert.Greater(t, s.ConsecutiveRetransmissions(), uint64(MaxRetransmissionAttempts))
}

// TestZeroWindowRetransmitDoesNotBackoffOrCount mirrors tcp_sender.cpp's
// zero-window probing rule: a retransmit triggered while the peer
// advertises a zero window is a probe, not a loss signal, so it neither
// counts toward consecutive_retransmissions nor doubles the RTO.
func TestZeroWindowRetransmitDoesNotBackoffOrCount(t *testing.T) {
	s := newTestSender(0, 1000)
	s.Receive(ackFullWindow(0))
	s.Writer().Push([]byte("x"))
	s.Writer().Close()

	var count int
	transmit := func(m SenderMessage) { count++ }
	s.Push(transmit)
	count = 0

	s.Tick(1000, transmit)
	assert.Equal(t, 1, count, "zero-window probe retransmit still fires at RTO")
	assert.Equal(t, uint64(0), s.ConsecutiveRetransmissions())

	s.Tick(1000, transmit)
	assert.Equal(t, 2, count, "RTO did not back off, so the next probe fires after another 1x RTO")
	assert.Equal(t, uint64(0), s.ConsecutiveRetransmissions())
}
