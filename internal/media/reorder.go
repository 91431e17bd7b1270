package media

import (
	"container/heap"

	"github.com/pion/rtp"

	"github.com/1ureka/piviewer/internal/util"
)

const defaultReorderWindow = 64

// reorderBuffer puts RTP packets of one track back into sequence order before
// they reach a container writer. Packets that arrive after their slot was
// given up are dropped. It is used by a single goroutine and needs no locking.
type reorderBuffer struct {
	window   int
	started  bool
	expected uint16
	buffer   packetHeap
}

func newReorderBuffer(window int) *reorderBuffer {
	if window <= 0 {
		window = defaultReorderWindow
	}
	return &reorderBuffer{window: window}
}

// Feed processes an incoming packet and returns all packets that can now be
// delivered in sequence order. When more than window packets are waiting on a
// gap, the gap is skipped.
func (r *reorderBuffer) Feed(pkt *rtp.Packet) []*rtp.Packet {
	if !r.started {
		r.started = true
		r.expected = pkt.SequenceNumber
	}

	if seqBefore(pkt.SequenceNumber, r.expected) {
		util.LogDebug("[ssrc %08x] late packet %d (expected %d), dropping",
			pkt.SSRC, pkt.SequenceNumber, r.expected)
		return nil
	}

	if pkt.SequenceNumber != r.expected {
		// Future packet, buffer it.
		heap.Push(&r.buffer, pkt)
		if r.buffer.Len() <= r.window {
			return nil
		}
		r.expected = r.buffer[0].SequenceNumber
		return r.drain(nil)
	}

	r.expected++
	return r.drain([]*rtp.Packet{pkt})
}

// Flush returns every buffered packet in sequence order, skipping gaps.
func (r *reorderBuffer) Flush() []*rtp.Packet {
	var result []*rtp.Packet
	for r.buffer.Len() > 0 {
		r.expected = r.buffer[0].SequenceNumber
		result = r.drain(result)
	}
	return result
}

// drain appends consecutive buffered packets starting at expected and drops
// buffered duplicates of packets already delivered.
func (r *reorderBuffer) drain(result []*rtp.Packet) []*rtp.Packet {
	for r.buffer.Len() > 0 {
		top := r.buffer[0].SequenceNumber
		switch {
		case seqBefore(top, r.expected):
			heap.Pop(&r.buffer)
		case top == r.expected:
			result = append(result, heap.Pop(&r.buffer).(*rtp.Packet))
			r.expected++
		default:
			return result
		}
	}
	return result
}

// seqBefore reports whether a precedes b in 16-bit serial number order.
func seqBefore(a, b uint16) bool {
	return int16(a-b) < 0
}

// ---------------------------------------------------------------------------
// packetHeap implements a min-heap sorted by sequence number.
// ---------------------------------------------------------------------------

type packetHeap []*rtp.Packet

func (h packetHeap) Len() int            { return len(h) }
func (h packetHeap) Less(i, j int) bool  { return seqBefore(h[i].SequenceNumber, h[j].SequenceNumber) }
func (h packetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *packetHeap) Push(x interface{}) { *h = append(*h, x.(*rtp.Packet)) }

func (h *packetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}
