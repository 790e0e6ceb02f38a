package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/logging"
	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/wire"
)

// FrameReceiver is anything that can accept a decoded Ethernet frame, the
// shape NetworkInterface.RecvFrame satisfies. FramePump is written against
// this interface rather than *netif.NetworkInterface directly so it can
// feed a Router's interfaces or a test double just as well.
type FrameReceiver interface {
	RecvFrame(frame wire.EthernetFrame)
}

// FramePump is an optional, explicitly async driver that reads raw frame
// bytes off a channel and calls a FrameReceiver's RecvFrame on a fixed
// worker count, for embedders that want to decouple frame ingestion from
// protocol processing.
//
// Grounded in the teacher's pkg/socket/processor.go: a bounded channel plus
// a worker pool, with atomic drop/process counters and env-var-tunable
// worker count and queue capacity. The core components it feeds
// (NetworkInterface, Router) remain synchronous and lock-free per the
// spec's concurrency model; FramePump lives beside them, not inside them.
type FramePump struct {
	receiver FrameReceiver

	workerCount int
	frameCh     chan []byte
	stopCh      chan struct{}
	wg          sync.WaitGroup

	framesProcessed uint64
	framesDropped   uint64
	queueFullDrops  uint64
}

// NewFramePump creates a FramePump that hands decoded frames to receiver
// using workerCount goroutines (default 4 if <= 0). PUMP_WORKERS and
// PUMP_QUEUE_CAP environment variables override the worker count and
// channel capacity, mirroring the teacher's PROCESSOR_WORKERS/
// PROCESSOR_QUEUE_CAP knobs.
func NewFramePump(receiver FrameReceiver, workerCount int) *FramePump {
	if workerCount <= 0 {
		workerCount = 4
	}
	if v := strings.TrimSpace(os.Getenv("PUMP_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workerCount = n
		}
	}
	qcap := 1000
	if v := strings.TrimSpace(os.Getenv("PUMP_QUEUE_CAP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			qcap = n
		}
	}

	return &FramePump{
		receiver:    receiver,
		workerCount: workerCount,
		frameCh:     make(chan []byte, qcap),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the worker pool.
func (p *FramePump) Start() {
	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	logging.Infof("frame pump started with %d workers", p.workerCount)
}

// Stop signals every worker to exit and waits for them to drain in flight
// work.
func (p *FramePump) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	close(p.frameCh)
	logging.Infof("frame pump stopped")
}

// Submit enqueues a raw frame for decoding and dispatch. In debug mode the
// frame is copied before queuing, so the caller may reuse or mutate data
// immediately after Submit returns; outside debug mode data is queued by
// reference, so the caller must not touch it again. Submit returns an
// error (and drops the frame) if the queue is full; callers expecting
// back-pressure should watch Metrics().QueueFullDrops rather than block.
func (p *FramePump) Submit(data []byte) error {
	if IsDebugMode() {
		cp := make([]byte, len(data))
		copy(cp, data)
		data = cp
	}
	select {
	case p.frameCh <- data:
		return nil
	default:
		atomic.AddUint64(&p.framesDropped, 1)
		atomic.AddUint64(&p.queueFullDrops, 1)
		return fmt.Errorf("frame dropped: pump queue is full")
	}
}

func (p *FramePump) worker(id int) {
	defer p.wg.Done()
	logging.DebugWithFields(logging.PumpFields(id), "worker started")

	for {
		select {
		case <-p.stopCh:
			logging.DebugWithFields(logging.PumpFields(id), "worker stopped")
			return
		case f, ok := <-p.frameCh:
			if !ok {
				return
			}
			p.process(f)
		}
	}
}

func (p *FramePump) process(data []byte) {
	frame, ok := wire.DecodeEthernetFrame(data)
	if !ok {
		atomic.AddUint64(&p.framesDropped, 1)
		return
	}
	p.receiver.RecvFrame(frame)
	atomic.AddUint64(&p.framesProcessed, 1)
}

// PumpMetrics are the plain counters a FramePump exposes.
type PumpMetrics struct {
	FramesProcessed uint64
	FramesDropped   uint64
	QueueFullDrops  uint64
}

// Metrics returns a snapshot of this pump's counters.
func (p *FramePump) Metrics() PumpMetrics {
	return PumpMetrics{
		FramesProcessed: atomic.LoadUint64(&p.framesProcessed),
		FramesDropped:   atomic.LoadUint64(&p.framesDropped),
		QueueFullDrops:  atomic.LoadUint64(&p.queueFullDrops),
	}
}
