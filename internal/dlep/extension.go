package dlep

import "fmt"

// TLVDecl declares one TLV type an extension contributes to a
// session's allowed-TLV map.
type TLVDecl struct {
	Type    TLVType
	Min     int
	Max     int
	MayRepeat bool

	// MandatoryIn lists the signal types where this TLV must be present
	// at least once.
	MandatoryIn []SignalType
}

func (d TLVDecl) mandatoryIn(s SignalType) bool {
	for _, m := range d.MandatoryIn {
		if m == s {
			return true
		}
	}
	return false
}

// SignalHandler is one extension's behavior for one signal type.
//
// Write is invoked when the session is about to emit this signal type;
// mac is non-nil for per-destination signals (DESTINATION_*). Process
// is invoked after the parser has validated an inbound signal of this
// type; it reads TLV values back out of the session's parser state.
type SignalHandler struct {
	Write   func(s *Session, mac *MACAddr) error
	Process func(s *Session) error
}

// RoleHooks are lifecycle callbacks an extension may implement per
// role.
type RoleHooks struct {
	InitRadio     func(s *Session) error
	InitRouter    func(s *Session) error
	CleanupRadio  func(s *Session)
	CleanupRouter func(s *Session)
}

// Extension is a named, numbered bundle of TLV declarations and signal
// handlers negotiated during init.
//
// Concrete extensions (baseProtoRadio, baseProtoRouter, and any
// additional registered extension) all implement this interface,
// favoring interface-based polymorphism over a struct of function
// pointers and a separate per-signal dispatch table.
type Extension interface {
	ID() uint16
	TLVs() []TLVDecl
	Handlers() map[SignalType]SignalHandler
	Hooks() RoleHooks
}

// -------------------------------------------------------------------------
// Registry (C3)
// -------------------------------------------------------------------------

// registry is the process-wide, read-only-after-init set of known
// extensions: a module-level registry populated at init and frozen
// before any session is created.
//
//nolint:gochecknoglobals // intentional: frozen registry, see RegisterExtension.
var registry = map[uint16]Extension{}

//nolint:gochecknoglobals // guards registry mutation before the first Session.
var registryFrozen bool

// RegisterExtension adds ext to the process-wide extension registry.
// It must be called from package init() functions before any Session
// is created; calling it afterward panics, since the registry is
// read-only-after-startup and shared by reference across all sessions.
func RegisterExtension(ext Extension) {
	if registryFrozen {
		panic("dlep: RegisterExtension called after the registry was frozen")
	}
	registry[ext.ID()] = ext
}

// freezeRegistry marks the registry read-only. Called lazily by the
// first Session constructed in the process.
func freezeRegistry() { registryFrozen = true }

func lookupExtension(id uint16) (Extension, bool) {
	ext, ok := registry[id]
	return ext, ok
}

// -------------------------------------------------------------------------
// Allowed-TLV map (C3)
// -------------------------------------------------------------------------

// tlvDescriptor is one entry of a session's allowed-TLV map.
type tlvDescriptor struct {
	decl      TLVDecl
	removable bool
}

// allowedTLVMap is the per-session mapping from TLV type to descriptor,
// built from the union of declarations of all active extensions.
type allowedTLVMap struct {
	entries map[TLVType]*tlvDescriptor
}

func newAllowedTLVMap() *allowedTLVMap {
	return &allowedTLVMap{entries: make(map[TLVType]*tlvDescriptor)}
}

func (m *allowedTLVMap) lookup(t TLVType) (*tlvDescriptor, bool) {
	d, ok := m.entries[t]
	return d, ok
}

// updateExtensions rebuilds the allowed-TLV map to be the exact union
// of the base-protocol extension and the named additional extensions.
//
// base is always included regardless of ids; it is the session's
// role-specific base extension rather than a registry lookup, since
// the base radio/router extensions are selected by role at session
// creation, not negotiated.
func (m *allowedTLVMap) updateExtensions(base Extension, ids []uint16) error {
	// Step 1: mark everything removable.
	for _, d := range m.entries {
		d.removable = true
	}

	exts := make([]Extension, 0, len(ids)+1)
	exts = append(exts, base)
	for _, id := range ids {
		ext, ok := lookupExtension(id)
		if !ok {
			// Unregistered extension ids are silently ignored.
			continue
		}
		exts = append(exts, ext)
	}

	for _, ext := range exts {
		for _, decl := range ext.TLVs() {
			existing, ok := m.entries[decl.Type]
			if !ok {
				m.entries[decl.Type] = &tlvDescriptor{decl: decl, removable: false}
				continue
			}
			if existing.decl.Min != decl.Min || existing.decl.Max != decl.Max {
				// Two active extensions disagree on the length bounds
				// of the same TLV type — not a compatible conflict.
				return fmt.Errorf("%w: TLV type %d declared with conflicting bounds", ErrInternal, decl.Type)
			}
			existing.removable = false
			existing.decl.MayRepeat = existing.decl.MayRepeat || decl.MayRepeat
			existing.decl.MandatoryIn = mergeMandatory(existing.decl.MandatoryIn, decl.MandatoryIn)
		}
	}

	// Step 3: purge anything still flagged removable.
	for t, d := range m.entries {
		if d.removable {
			delete(m.entries, t)
		}
	}
	return nil
}

func mergeMandatory(a, b []SignalType) []SignalType {
	seen := make(map[SignalType]bool, len(a)+len(b))
	out := make([]SignalType, 0, len(a)+len(b))
	for _, s := range append(append([]SignalType{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
