package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/dantte-lp/godlep/internal/config"
	"github.com/dantte-lp/godlep/internal/dlep"
	dlepmetrics "github.com/dantte-lp/godlep/internal/metrics"
	"github.com/dantte-lp/godlep/internal/netio"
	"github.com/dantte-lp/godlep/internal/server"
)

// readBufSize is the chunk size for the per-connection TCP read loop.
// A DLEP signal is rarely more than a few hundred bytes, so this
// comfortably holds several queued signals.
const readBufSize = 4096

// Engine owns every running interface (radio or router role) for the
// daemon's lifetime, the session registry that backs the introspection
// API, and the shared in-process layer-2 table: one long-lived object
// the daemon creates once and reconciles against config on every
// SIGHUP.
type Engine struct {
	dlepCfg config.DLEPConfig
	logger  *slog.Logger
	metrics *dlepmetrics.Collector
	reg     *server.Registry
	l2      *dlep.MemoryL2Table

	mu      sync.Mutex
	running map[string]*ifaceRuntime // keyed by InterfaceConfig.InterfaceKey()
}

// ifaceRuntime is the daemon-owned state for one running interface:
// its discovery socket, its role-specific TCP side, and the
// cancellation handle SIGHUP reconciliation and shutdown use to tear
// it down.
type ifaceRuntime struct {
	cfg    config.InterfaceConfig
	cancel context.CancelFunc

	discoveryLn *netio.Listener
}

// NewEngine constructs an Engine with no interfaces running yet.
func NewEngine(dlepCfg config.DLEPConfig, logger *slog.Logger, metrics *dlepmetrics.Collector, reg *server.Registry) *Engine {
	return &Engine{
		dlepCfg: dlepCfg,
		logger:  logger.With(slog.String("component", "engine")),
		metrics: metrics,
		reg:     reg,
		l2:      dlep.NewMemoryL2Table(),
		running: make(map[string]*ifaceRuntime),
	}
}

// Reconcile starts interfaces present in ifaces but not yet running,
// and stops running interfaces absent from ifaces.
func (e *Engine) Reconcile(ctx context.Context, g interface{ Go(func() error) }, ifaces []config.InterfaceConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	desired := make(map[string]config.InterfaceConfig, len(ifaces))
	for _, ic := range ifaces {
		desired[ic.InterfaceKey()] = ic
	}

	for key, rt := range e.running {
		if _, ok := desired[key]; !ok {
			e.logger.Info("stopping interface removed from config", slog.String("interface", key))
			rt.cancel()
			delete(e.running, key)
		}
	}

	for key, ic := range desired {
		if _, ok := e.running[key]; ok {
			continue
		}
		ifCtx, cancel := context.WithCancel(ctx)
		rt := &ifaceRuntime{cfg: ic, cancel: cancel}
		e.running[key] = rt

		switch ic.Role {
		case "radio":
			g.Go(func() error { e.runRadio(ifCtx, rt); return nil })
		case "router":
			g.Go(func() error { e.runRouter(ifCtx, rt); return nil })
		}
		e.logger.Info("interface started", slog.String("interface", key), slog.String("role", ic.Role))
	}
}

// StopAll cancels every running interface, for shutdown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rt := range e.running {
		rt.cancel()
	}
}

func (e *Engine) sessionConfig(ic config.InterfaceConfig) dlep.Config {
	hb := ic.HeartbeatInterval
	if hb == 0 {
		hb = e.dlepCfg.DefaultHeartbeatInterval
	}
	di := ic.DiscoveryInterval
	if di == 0 {
		di = e.dlepCfg.DefaultDiscoveryInterval
	}
	return dlep.Config{
		PeerType:          e.dlepCfg.PeerType,
		DiscoveryInterval: di,
		HeartbeatInterval: hb,
		SendNeighbors:     ic.SendNeighbors,
		SendProxied:       ic.SendProxied,
		ExtensionIDs:      ic.ExtensionIDs,
	}
}

// -------------------------------------------------------------------------
// Radio role
// -------------------------------------------------------------------------

// runRadio opens the discovery listener and TCP listener for a
// radio-role interface, answers PEER_DISCOVERY with PEER_OFFER, and
// spawns one Session per accepted TCP connection.
func (e *Engine) runRadio(ctx context.Context, rt *ifaceRuntime) {
	logger := e.logger.With(slog.String("interface", rt.cfg.Name), slog.String("role", "radio"))

	discAP, err := rt.cfg.DiscoveryAddrPort()
	if err != nil {
		logger.Error("invalid discovery address", slog.String("error", err.Error()))
		return
	}
	tcpAP, err := rt.cfg.TCPAddrPort()
	if err != nil {
		logger.Error("invalid bind address", slog.String("error", err.Error()))
		return
	}

	ln, err := netio.NewListener(ctx, netio.ListenerConfig{
		IfName:   rt.cfg.Name,
		BindAddr: tcpAP.Addr(),
		Port:     discAP.Port(),
	})
	if err != nil {
		logger.Error("failed to open discovery listener", slog.String("error", err.Error()))
		return
	}
	rt.discoveryLn = ln
	defer ln.Close()

	recv := netio.NewReceiver(&radioDemuxer{rt: rt, conpointAddr: tcpAP.Addr(), conpointPort: tcpAP.Port(), logger: logger}, logger)
	go func() {
		_ = recv.Run(ctx, ln)
	}()

	tcpLn, err := net.Listen("tcp", tcpAP.String())
	if err != nil {
		logger.Error("failed to open TCP listener", slog.String("addr", tcpAP.String()), slog.String("error", err.Error()))
		return
	}
	defer tcpLn.Close()
	go func() {
		<-ctx.Done()
		tcpLn.Close()
	}()

	logger.Info("radio interface listening", slog.String("discovery", discAP.String()), slog.String("tcp", tcpAP.String()))

	for {
		conn, err := tcpLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		go e.serveRadioConn(ctx, rt, conn, logger)
	}
}

// radioDemuxer answers PEER_DISCOVERY on a radio interface's discovery
// socket with a PEER_OFFER advertising its TCP listen address.
type radioDemuxer struct {
	rt           *ifaceRuntime
	conpointAddr netip.Addr
	conpointPort uint16
	logger       *slog.Logger
}

func (d *radioDemuxer) HandleDatagram(ifName string, data []byte, meta netio.PacketMeta) error {
	if err := dlep.DecodePeerDiscovery(data); err != nil {
		return fmt.Errorf("decode peer discovery on %s: %w", ifName, err)
	}
	conpoints := dlep.ConpointsFromAddrs([]netip.Addr{d.conpointAddr}, d.conpointPort)
	offer := dlep.EncodePeerOffer(conpoints)
	if err := d.rt.discoveryLn.Reply(offer, meta.SrcAddr); err != nil {
		return fmt.Errorf("reply peer offer on %s: %w", ifName, err)
	}
	return nil
}

func (e *Engine) serveRadioConn(ctx context.Context, rt *ifaceRuntime, conn net.Conn, logger *slog.Logger) {
	id := server.SessionIDFromConn(rt.cfg.Name, conn.RemoteAddr().String(), time.Now())
	sessLogger := logger.With(slog.String("session", id), slog.String("peer", conn.RemoteAddr().String()))

	var sess *dlep.Session
	sess = dlep.NewRadioSession(e.sessionConfig(rt.cfg),
		func(b []byte) error { _, err := conn.Write(b); return err },
		e.l2,
		func(_ *dlep.Session, reason dlep.TerminationReason, _ error) {
			e.reg.Remove(id)
			e.metrics.UnregisterSession(rt.cfg.Name, "radio")
			e.metrics.RecordTermination(rt.cfg.Name, "radio", string(reason))
			conn.Close()
			sessLogger.Info("session ended", slog.String("reason", string(reason)))
		},
		sessLogger)

	e.reg.Add(&server.SessionInfo{ID: id, Interface: rt.cfg.Name, PeerAddr: conn.RemoteAddr().String(), Session: sess})
	e.metrics.RegisterSession(rt.cfg.Name, "radio")

	runSession(ctx, conn, sess, sessLogger)
}

// -------------------------------------------------------------------------
// Router role
// -------------------------------------------------------------------------

// runRouter creates the long-lived router session, opens its discovery
// socket, and feeds inbound PEER_OFFER datagrams to the session until
// a connection point is selected, at which point it dials TCP and
// hands the connection to the shared session run loop.
func (e *Engine) runRouter(ctx context.Context, rt *ifaceRuntime) {
	logger := e.logger.With(slog.String("interface", rt.cfg.Name), slog.String("role", "router"))

	discAP, err := rt.cfg.DiscoveryAddrPort()
	if err != nil {
		logger.Error("invalid discovery address", slog.String("error", err.Error()))
		return
	}
	tcpAP, err := rt.cfg.TCPAddrPort()
	if err != nil {
		logger.Error("invalid bind address", slog.String("error", err.Error()))
		return
	}

	ln, err := netio.NewListener(ctx, netio.ListenerConfig{
		IfName:   rt.cfg.Name,
		BindAddr: tcpAP.Addr(),
		Port:     discAP.Port(),
	})
	if err != nil {
		logger.Error("failed to open discovery listener", slog.String("error", err.Error()))
		return
	}
	rt.discoveryLn = ln
	defer ln.Close()

	id := server.SessionIDFromConn(rt.cfg.Name, discAP.String(), time.Now())
	sessLogger := logger.With(slog.String("session", id))

	connected := make(chan net.Conn, 1)

	var sess *dlep.Session
	sess = dlep.NewRouterSession(e.sessionConfig(rt.cfg),
		func(b []byte) error {
			// Transport send is installed by SetTransportSend once TCP
			// connects; until then the session only ever writes
			// PEER_DISCOVERY via discoverySend, so this is unreachable.
			return fmt.Errorf("router session %s: transport send used before connect", id)
		},
		e.l2,
		func(_ *dlep.Session, reason dlep.TerminationReason, _ error) {
			e.reg.Remove(id)
			e.metrics.UnregisterSession(rt.cfg.Name, "router")
			e.metrics.RecordTermination(rt.cfg.Name, "router", string(reason))
			sessLogger.Info("session ended", slog.String("reason", string(reason)))
		},
		sessLogger)
	sess.SetDiscoverySend(func(b []byte) error {
		return ln.SendMulticast(b, discAP.Addr())
	})

	e.reg.Add(&server.SessionInfo{ID: id, Interface: rt.cfg.Name, Session: sess})

	demux := &routerDemuxer{sess: sess, dialer: &net.Dialer{}, connected: connected, logger: sessLogger}
	recv := netio.NewReceiver(demux, logger)
	recvDone := make(chan struct{})
	go func() {
		_ = recv.Run(ctx, ln)
		close(recvDone)
	}()

	select {
	case <-ctx.Done():
		sess.Shutdown()
		return
	case conn := <-connected:
		sess.SetTransportSend(func(b []byte) error { _, err := conn.Write(b); return err })
		if err := sess.TransitionAfterConnect(); err != nil {
			sessLogger.Error("failed to transition after connect", slog.String("error", err.Error()))
			conn.Close()
			return
		}
		e.metrics.RegisterSession(rt.cfg.Name, "router")
		runSession(ctx, conn, sess, sessLogger)
	}
}

// routerDemuxer feeds inbound discovery-socket datagrams (PEER_OFFER)
// to the one router session this interface owns, and dials TCP once a
// connection point has been selected.
type routerDemuxer struct {
	sess      *dlep.Session
	dialer    *net.Dialer
	connected chan net.Conn
	logger    *slog.Logger

	dialOnce sync.Once
}

func (d *routerDemuxer) HandleDatagram(ifName string, data []byte, meta netio.PacketMeta) error {
	// Discovery datagrams carry the 4-byte "DLEP" preamble; the session
	// parses TCP-framed signals, so the preamble is stripped first.
	if len(data) < 4 || string(data[:4]) != "DLEP" {
		return fmt.Errorf("handle peer offer on %s: %w", ifName, dlep.ErrUDPMagic)
	}
	d.sess.SenderAddr = meta.SrcAddr
	if _, err := d.sess.HandleInboundBytes(data[4:]); err != nil {
		return fmt.Errorf("handle peer offer on %s: %w", ifName, err)
	}
	if d.sess.SelectedConpoint == nil {
		return nil
	}
	d.dialOnce.Do(func() {
		cp := *d.sess.SelectedConpoint
		addr := net.JoinHostPort(cp.Addr.String(), fmt.Sprintf("%d", cp.Port))
		conn, err := d.dialer.Dial("tcp", addr)
		if err != nil {
			d.logger.Error("failed to dial selected conpoint", slog.String("addr", addr), slog.String("error", err.Error()))
			return
		}
		d.connected <- conn
	})
	return nil
}

// -------------------------------------------------------------------------
// Shared per-connection run loop
// -------------------------------------------------------------------------

// runSession pumps inbound TCP bytes into sess and drains its timer
// event channel until either the connection or the context closes: one
// goroutine pair per session, timers and I/O funneled through
// Session.Events().
func runSession(ctx context.Context, conn net.Conn, sess *dlep.Session, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 0, readBufSize)
		chunk := make([]byte, readBufSize)
		for {
			n, err := conn.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
				consumed, herr := sess.HandleInboundBytes(buf)
				buf = buf[consumed:]
				if herr != nil {
					return
				}
			}
			if err != nil {
				if !sess.Terminated() {
					sess.Shutdown()
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			sess.Shutdown()
			conn.Close()
			<-done
			return
		case <-done:
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			sess.HandleTimerEvent(ev)
		}
	}
}
