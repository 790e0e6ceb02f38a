package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/wire"
)

type mockFrameReceiver struct {
	received uint64
}

func (m *mockFrameReceiver) RecvFrame(wire.EthernetFrame) {
	atomic.AddUint64(&m.received, 1)
}

func TestFramePumpDispatchesToReceiver(t *testing.T) {
	recv := &mockFrameReceiver{}
	pump := NewFramePump(recv, 2)
	pump.Start()
	defer pump.Stop()

	frame := wire.EthernetFrame{
		Header:  wire.EthernetHeader{EtherType: wire.EtherTypeIPv4},
		Payload: []byte("payload"),
	}
	buf := frame.Serialize()

	if err := pump.Submit(buf); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadUint64(&recv.received) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadUint64(&recv.received) != 1 {
		t.Fatalf("expected 1 frame delivered, got %d", recv.received)
	}

	metrics := pump.Metrics()
	if metrics.FramesProcessed != 1 {
		t.Errorf("expected FramesProcessed=1, got %d", metrics.FramesProcessed)
	}
}

func TestFramePumpDropsMalformedFrame(t *testing.T) {
	recv := &mockFrameReceiver{}
	pump := NewFramePump(recv, 1)
	pump.Start()
	defer pump.Stop()

	if err := pump.Submit([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadUint64(&pump.framesDropped) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if pump.Metrics().FramesDropped != 1 {
		t.Errorf("expected FramesDropped=1, got %d", pump.Metrics().FramesDropped)
	}
	if atomic.LoadUint64(&recv.received) != 0 {
		t.Errorf("malformed frame should not reach receiver")
	}
}

func TestSubmitCopiesBufferInDebugMode(t *testing.T) {
	SetDebugMode(true)
	defer SetDebugMode(false)

	pump := NewFramePump(&mockFrameReceiver{}, 1)
	buf := []byte{0x01, 0x02, 0x03}
	if err := pump.Submit(buf); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	buf[0] = 0xff

	queued := <-pump.frameCh
	if queued[0] == 0xff {
		t.Error("debug mode should have copied the buffer before queuing")
	}
}

func TestSubmitAliasesBufferOutsideDebugMode(t *testing.T) {
	SetDebugMode(false)

	pump := NewFramePump(&mockFrameReceiver{}, 1)
	buf := []byte{0x01, 0x02, 0x03}
	if err := pump.Submit(buf); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	buf[0] = 0xff

	queued := <-pump.frameCh
	if queued[0] != 0xff {
		t.Error("non-debug mode should queue the buffer by reference")
	}
}

func TestFramePumpSubmitRejectsWhenQueueFull(t *testing.T) {
	pump := NewFramePump(&mockFrameReceiver{}, 1)
	pump.frameCh = make(chan []byte, 1)

	if err := pump.Submit([]byte{0x01}); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	if err := pump.Submit([]byte{0x02}); err == nil {
		t.Fatal("expected second submit to fail with a full queue")
	}
	if pump.Metrics().QueueFullDrops != 1 {
		t.Errorf("expected QueueFullDrops=1, got %d", pump.Metrics().QueueFullDrops)
	}
}
