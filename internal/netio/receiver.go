package netio

import (
	"context"
	"fmt"
	"log/slog"
)

// Demuxer routes a decoded discovery datagram to the right per-
// interface handler. This interface decouples the receiver from
// internal/dlep to avoid an import cycle between netio and the
// session/daemon layer that owns per-interface state.
type Demuxer interface {
	// HandleDatagram processes one discovery datagram received on the
	// named interface, with src metadata for routing a reply.
	HandleDatagram(ifName string, data []byte, meta PacketMeta) error
}

// Receiver reads discovery datagrams from one or more Listeners and
// routes them to a Demuxer.
type Receiver struct {
	demuxer Demuxer
	logger  *slog.Logger
}

// NewReceiver creates a Receiver that routes datagrams to demuxer.
func NewReceiver(demuxer Demuxer, logger *slog.Logger) *Receiver {
	return &Receiver{
		demuxer: demuxer,
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from all listeners concurrently until ctx is cancelled.
// Each listener gets its own goroutine; Run blocks until all of them
// return.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(listeners))
	for _, ln := range listeners {
		go func(l *Listener) {
			r.recvLoop(ctx, l)
			done <- struct{}{}
		}(ln)
	}

	for range len(listeners) {
		<-done
	}
	return nil
}

func (r *Receiver) recvLoop(ctx context.Context, ln *Listener) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.recvOne(ctx, ln); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("interface", ln.IfName()), slog.String("error", err.Error()))
		}
	}
}

func (r *Receiver) recvOne(ctx context.Context, ln *Listener) error {
	data, meta, err := ln.Recv(ctx)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	if err := r.demuxer.HandleDatagram(ln.IfName(), data, meta); err != nil {
		r.logger.Debug("demux failed",
			slog.String("interface", ln.IfName()),
			slog.String("src", meta.SrcAddr.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
