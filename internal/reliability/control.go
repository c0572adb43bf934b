package reliability

import (
	"sync/atomic"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
)

// ControlMessage is one HEARTBEAT or ACKNACK/NACK_FRAG handed off from a
// listener goroutine to the ControlHandler (spec §4.4 "Two-ring control
// plane", spec §5 thread 5).
type ControlMessage struct {
	PeerPrefix rtps.GuidPrefix
	Heartbeat  *Heartbeat
	AckNack    *AckNack
	NackFrag   *NackFrag
}

var controlChannelDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "hdds_reliability_control_channel_dropped_total",
	Help: "Control-plane messages dropped because the bounded channel was full.",
})

func init() {
	prometheus.MustRegister(controlChannelDropped)
}

// ControlChannel is the bounded MPSC channel isolating HEARTBEAT/ACKNACK
// traffic from the data-plane slab pool (spec §4.4, spec §5 "Suspension
// points": ring pushes are try_push; channels are bounded and
// back-pressure by dropping a packet, counted).
type ControlChannel struct {
	ch      chan ControlMessage
	dropped atomic.Int64
}

// NewControlChannel constructs a channel with the given bound.
func NewControlChannel(capacity int) *ControlChannel {
	return &ControlChannel{ch: make(chan ControlMessage, capacity)}
}

// TryPush attempts a non-blocking send, counting and dropping on
// overflow rather than blocking the listener goroutine.
func (c *ControlChannel) TryPush(msg ControlMessage) bool {
	select {
	case c.ch <- msg:
		return true
	default:
		c.dropped.Add(1)
		controlChannelDropped.Inc()
		return false
	}
}

// Close shuts the channel down, letting a blocked ControlHandler.Run
// return once it has drained whatever was already queued.
func (c *ControlChannel) Close() {
	close(c.ch)
}

// Dropped reports the number of messages dropped due to channel
// overflow.
func (c *ControlChannel) Dropped() int64 {
	return c.dropped.Load()
}

// ControlHandler is the single consumer of a ControlChannel (spec §5
// thread 5 "Control handler"): it hands each already-parsed HEARTBEAT,
// ACKNACK or NACK_FRAG to the matching supplied callback.
type ControlHandler struct {
	channel *ControlChannel

	OnHeartbeat func(peer rtps.GuidPrefix, hb Heartbeat)
	OnAckNack   func(peer rtps.GuidPrefix, an AckNack)
	OnNackFrag  func(peer rtps.GuidPrefix, nf NackFrag)
}

// NewControlHandler builds a handler consuming from channel.
func NewControlHandler(channel *ControlChannel) *ControlHandler {
	return &ControlHandler{channel: channel}
}

// Run consumes control messages until the channel is closed. Intended
// to be launched as the participant's dedicated control-handler
// goroutine (spec §5 thread 5).
func (h *ControlHandler) Run() {
	for msg := range h.channel.ch {
		h.dispatch(msg)
	}
}

func (h *ControlHandler) dispatch(msg ControlMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("reliability: recovered panic handling control message: %v", r)
		}
	}()
	switch {
	case msg.Heartbeat != nil && h.OnHeartbeat != nil:
		h.OnHeartbeat(msg.PeerPrefix, *msg.Heartbeat)
	case msg.AckNack != nil && h.OnAckNack != nil:
		h.OnAckNack(msg.PeerPrefix, *msg.AckNack)
	case msg.NackFrag != nil && h.OnNackFrag != nil:
		h.OnNackFrag(msg.PeerPrefix, *msg.NackFrag)
	}
}
