package dlep

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// signalHeaderSize is the TCP-framed signal header size: signal_type
// (u16) + signal_length (u16).
const signalHeaderSize = 4

// tlvHeaderSize is the TLV header size: type (u16) + length (u16).
const tlvHeaderSize = 4

// udpMagic is the 4-byte ASCII preamble ("DLEP") prefixed to signals
// carried in UDP discovery datagrams. TCP-framed signals omit it.
var udpMagic = [4]byte{'D', 'L', 'E', 'P'}

// ErrUDPMagic is returned when a UDP discovery datagram does not begin
// with the DLEP magic preamble.
var ErrUDPMagic = errors.New("dlep: missing DLEP magic preamble in UDP frame")

// -------------------------------------------------------------------------
// Writer
// -------------------------------------------------------------------------

// writer is the TLV codec's outbound half. One writer backs one
// Session's output buffer.
type writer struct {
	out *outBuffer

	signalStart int
	signalType  SignalType
	inProgress  bool
}

func newWriter() *writer {
	return &writer{out: newOutBuffer()}
}

// startSignal begins a new signal. udp selects the 4-byte magic
// preamble used for UDP discovery frames; TCP signals omit it.
func (w *writer) startSignal(t SignalType, udp bool) {
	if udp {
		w.out.append(udpMagic[:])
	}
	w.signalStart = w.out.length()
	w.signalType = t
	w.inProgress = true

	w.out.appendU16(uint16(t))
	w.out.appendU16(0) // placeholder for signal_length, patched in finishSignal
}

// addTLV appends <type, len(value), value> to the in-progress signal.
func (w *writer) addTLV(t TLVType, value []byte) {
	w.out.appendU16(uint16(t))
	w.out.appendU16(uint16(len(value)))
	w.out.append(value)
}

// finishSignal patches signal_length back into the header. On overflow
// (body exceeds the u16 length field) the signal is abandoned and the
// buffer truncated back to its pre-signal length; this is a fatal
// session error.
func (w *writer) finishSignal() error {
	if !w.inProgress {
		return fmt.Errorf("dlep: finishSignal called with no signal in progress")
	}
	w.inProgress = false

	bodyLen := w.out.length() - w.signalStart - signalHeaderSize
	if bodyLen < 0 || bodyLen > 0xFFFF {
		w.out.truncate(w.signalStart)
		return ErrBufferOverflow
	}
	w.out.patchU16(w.signalStart+2, uint16(bodyLen))
	return nil
}

// abandonSignal truncates the output buffer back to the start of the
// in-progress signal without patching its length. Used when a handler
// fails mid-encode: the caller aborts the in-progress signal and
// truncates back to the pre-signal length.
func (w *writer) abandonSignal() {
	if !w.inProgress {
		return
	}
	w.inProgress = false
	w.out.truncate(w.signalStart)
}

func (w *writer) bytes() []byte { return w.out.data() }

func (w *writer) length() int { return w.out.length() }

// drain removes the first n bytes of already-written output, e.g.
// after a successful partial or full TCP write.
func (w *writer) drain(n int) {
	if n <= 0 {
		return
	}
	if n >= w.out.length() {
		w.out.buf = w.out.buf[:0]
		return
	}
	w.out.buf = append(w.out.buf[:0], w.out.buf[n:]...)
}

// -------------------------------------------------------------------------
// Reader
// -------------------------------------------------------------------------

// decodedSignal is one complete, framed signal pulled off the wire,
// not yet TLV-validated (that is the job of the session parser).
type decodedSignal struct {
	Type SignalType
	Body []byte // the raw TLV bytes, length == declared signal_length
}

// splitSignals consumes as many complete TCP-framed signals as fit in
// buf and returns them plus the number of bytes consumed. Partial
// trailing bytes are left for the caller to carry over into the next
// read.
func splitSignals(buf []byte) (signals []decodedSignal, consumed int) {
	for {
		remaining := buf[consumed:]
		if len(remaining) < signalHeaderSize {
			return signals, consumed
		}
		sigType := SignalType(binary.BigEndian.Uint16(remaining[0:2]))
		sigLen := binary.BigEndian.Uint16(remaining[2:4])
		total := signalHeaderSize + int(sigLen)
		if len(remaining) < total {
			return signals, consumed
		}
		signals = append(signals, decodedSignal{
			Type: sigType,
			Body: remaining[signalHeaderSize:total],
		})
		consumed += total
	}
}

// decodeUDPSignal parses exactly one magic-prefixed UDP discovery
// datagram. UDP discovery is unframed at the datagram level: one
// datagram carries exactly one signal.
func decodeUDPSignal(datagram []byte) (decodedSignal, error) {
	if len(datagram) < 4 || datagram[0] != udpMagic[0] || datagram[1] != udpMagic[1] ||
		datagram[2] != udpMagic[2] || datagram[3] != udpMagic[3] {
		return decodedSignal{}, ErrUDPMagic
	}
	rest := datagram[4:]
	if len(rest) < signalHeaderSize {
		return decodedSignal{}, ErrIncompleteTLVHeader
	}
	sigType := SignalType(binary.BigEndian.Uint16(rest[0:2]))
	sigLen := binary.BigEndian.Uint16(rest[2:4])
	body := rest[signalHeaderSize:]
	if len(body) < int(sigLen) {
		return decodedSignal{}, ErrIncompleteTLV
	}
	return decodedSignal{Type: sigType, Body: body[:sigLen]}, nil
}
