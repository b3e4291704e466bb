package dlep

import "encoding/binary"

// parsedValue is one parser value-table entry: a TLV occurrence inside
// a just-parsed signal.
//
// next chains multi-valued TLVs together; -1 terminates the chain.
type parsedValue struct {
	tlvType TLVType
	offset  int // byte offset of the value within the signal body
	length  int
	next    int // index into ParsedSignal.values, or -1
}

// ParsedSignal is the result of successfully parsing one inbound
// signal's TLVs against a session's allowed-TLV map.
//
// Value slices returned by Binary are views into body and are valid
// only until the next signal is processed.
type ParsedSignal struct {
	Type SignalType
	body []byte

	values []parsedValue
	first  map[TLVType]int // TLV type -> index of its first value, or absent
}

// Binary returns the raw bytes of value v. v must be an index returned
// by First or Next.
func (p *ParsedSignal) Binary(v int) []byte {
	pv := p.values[v]
	return p.body[pv.offset : pv.offset+pv.length]
}

// First returns the index of the first occurrence of t, or (-1, false)
// if t was not present.
func (p *ParsedSignal) First(t TLVType) (int, bool) {
	idx, ok := p.first[t]
	if !ok {
		return -1, false
	}
	return idx, true
}

// Next returns the index of the next occurrence of the same TLV type
// as v, or (-1, false) at the end of the chain.
func (p *ParsedSignal) Next(v int) (int, bool) {
	n := p.values[v].next
	if n < 0 {
		return -1, false
	}
	return n, true
}

// parseSignal is the session parser's single pass over one signal's
// TLVs. allowed is the session's current allowed-TLV map; the
// restrict-signal check has already been performed by the caller.
func parseSignal(sigType SignalType, body []byte, allowed *allowedTLVMap) (*ParsedSignal, error) {
	p := &ParsedSignal{
		Type: sigType,
		body: body,
		first: make(map[TLVType]int),
	}

	lastOfType := make(map[TLVType]int) // TLV type -> index of last value seen, for chaining
	seenCount := make(map[TLVType]int)

	offset := 0
	for offset < len(body) {
		if len(body)-offset < tlvHeaderSize {
			return nil, ErrIncompleteTLVHeader
		}
		tlvType := TLVType(binary.BigEndian.Uint16(body[offset : offset+2]))
		tlvLen := int(binary.BigEndian.Uint16(body[offset+2 : offset+4]))
		valueOffset := offset + tlvHeaderSize

		if tlvLen > len(body)-valueOffset {
			return nil, ErrIncompleteTLV
		}

		desc, ok := allowed.lookup(tlvType)
		if !ok {
			return nil, ErrUnsupportedTLV
		}
		if tlvLen < desc.decl.Min || tlvLen > desc.decl.Max {
			return nil, ErrIllegalTLVLength
		}

		seenCount[tlvType]++
		if seenCount[tlvType] > 1 && !desc.decl.MayRepeat {
			return nil, ErrDuplicateTLV
		}

		idx := len(p.values)
		p.values = append(p.values, parsedValue{
			tlvType: tlvType,
			offset:  valueOffset,
			length:  tlvLen,
			next:    -1,
		})

		if prev, ok := lastOfType[tlvType]; ok {
			p.values[prev].next = idx
		} else {
			p.first[tlvType] = idx
		}
		lastOfType[tlvType] = idx

		offset = valueOffset + tlvLen
	}

	for _, d := range allowed.entries {
		if !d.decl.mandatoryIn(sigType) {
			continue
		}
		if _, ok := p.first[d.decl.Type]; !ok {
			return nil, ErrMissingMandatoryTLV
		}
	}

	return p, nil
}
