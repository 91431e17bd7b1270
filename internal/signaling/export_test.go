package signaling

// barrier returns once every event queued before it has been handled.
func (c *Controller) barrier() {
	ack := make(chan struct{})
	if !c.enqueue(event{kind: evBarrier, ack: ack}) {
		return
	}
	select {
	case <-ack:
	case <-c.done:
	}
}
