// Package packet implements the tagged binary packet layer: a Packet is a
// named, direction-tagged structure with an ordered field list, encoded as
// pid(1 byte) || fields. Packet ids are assigned per-direction at
// registration time, in registration order, starting at 0 — mirroring the
// frame-header discipline in mini-rpc's protocol package, generalized from
// one fixed envelope shape to many tagged packet types.
package packet

import (
	"fmt"

	"github.com/Def-Try/hyphen0/internal/primitives"
	"github.com/Def-Try/hyphen0/internal/xerrors"
)

// Direction distinguishes which peer may originate a packet.
type Direction bool

const (
	Clientbound Direction = false
	Serverbound Direction = true
)

func (d Direction) String() string {
	if d == Serverbound {
		return "serverbound"
	}
	return "clientbound"
}

// Packet is any type that knows its own direction and how to read/write its
// fields. Decode receives a fresh zero-value receiver and must populate it
// from r; Encode appends the packet's fields (not its pid) to w.
type Packet interface {
	Direction() Direction
	Encode(w *primitives.Writer)
	Decode(r *primitives.Reader) error
}

// Name is implemented by packets that want a friendlier identifier than
// their Go type name for logs and EventHub dispatch keys; packets that don't
// implement it are identified by their Go type name (as printed by %T)
// instead.
type Name interface {
	PacketName() string
}

type registration struct {
	name    string
	pid     byte
	factory func() Packet
}

// Registry holds the two disjoint pid spaces, keyed by direction. It is
// built once at init time via Register and is read-only thereafter, matching
// the read-only-after-init global registry spec.md's concurrency model
// calls for.
type Registry struct {
	byDirection [2][]registration
	nameToPID   map[string]byte
}

// NewRegistry returns an empty registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{nameToPID: make(map[string]byte)}
}

// Register assigns the next free pid in dir to a packet type, identified by
// name for diagnostics, and records factory as the zero-value constructor
// used during Decode. Registering the same name twice is a programming
// error and panics, matching spec.md's "registering twice is a programming
// error" invariant — this is a startup-time condition, not a runtime one.
func (r *Registry) Register(dir Direction, name string, factory func() Packet) byte {
	idx := dirIndex(dir)
	key := dir.String() + ":" + name
	if _, exists := r.nameToPID[key]; exists {
		panic("packet: " + name + " already registered for " + dir.String())
	}
	pid := byte(len(r.byDirection[idx]))
	r.byDirection[idx] = append(r.byDirection[idx], registration{name: name, pid: pid, factory: factory})
	r.nameToPID[key] = pid
	return pid
}

func dirIndex(dir Direction) int {
	if dir == Serverbound {
		return 1
	}
	return 0
}

// Encode produces pid || fields for p, sent in direction dir. It refuses if
// p's own declared direction disagrees with dir.
func (r *Registry) Encode(p Packet, dir Direction) ([]byte, error) {
	if p.Direction() != dir {
		return nil, &xerrors.DirectionMismatchError{
			Requested:  bool(dir),
			PacketKind: packetName(p),
			Declared:   bool(p.Direction()),
		}
	}
	pid, ok := r.nameToPID[dir.String()+":"+packetName(p)]
	if !ok {
		panic("packet: " + packetName(p) + " was never registered for " + dir.String())
	}
	w := primitives.NewWriter()
	w.WriteUint8(pid)
	p.Encode(w)
	return w.Bytes(), nil
}

// Decode reads one packet of the given incoming direction from data. It
// returns the number of bytes consumed and the decoded packet. On a short
// buffer it returns xerrors.ErrIncompleteData and data must be retried
// unchanged once more bytes arrive.
func (r *Registry) Decode(data []byte, dir Direction) (int, Packet, error) {
	rd := primitives.NewReader(data)
	pid, err := rd.ReadUint8()
	if err != nil {
		return 0, nil, err
	}
	idx := dirIndex(dir)
	if int(pid) >= len(r.byDirection[idx]) {
		return 0, nil, &xerrors.UnknownPacketError{PID: pid, Serverbound: bool(dir)}
	}
	reg := r.byDirection[idx][pid]
	p := reg.factory()
	if err := p.Decode(rd); err != nil {
		return 0, nil, err
	}
	return rd.Consumed(), p, nil
}

func packetName(p Packet) string {
	if n, ok := p.(Name); ok {
		return n.PacketName()
	}
	return fmt.Sprintf("%T", p)
}
