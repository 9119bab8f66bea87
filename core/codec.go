package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"

	"github.com/encodeous/fibbing/state"
	"google.golang.org/protobuf/encoding/protowire"
)

// Frame is a single southbound message. Exactly one of its fields is set.
type Frame struct {
	Hello  state.RouterId
	LSAs   []state.LSA
	Change *state.TopologyChange
}

const (
	frameHello  protowire.Number = 1
	frameLSA    protowire.Number = 2
	frameChange protowire.Number = 3

	lsaOrigin   protowire.Number = 1
	lsaNeighbor protowire.Number = 2
	lsaCost     protowire.Number = 3
	lsaSeqno    protowire.Number = 4
	lsaForward  protowire.Number = 5

	changeOrigin protowire.Number = 1
	changeSeqno  protowire.Number = 2
	changeOp     protowire.Number = 3

	opKind   protowire.Number = 1
	opRouter protowire.Number = 2
	opPeer   protowire.Number = 3
	opPrefix protowire.Number = 4
	opCost   protowire.Number = 5
)

var errFrameSize = errors.New("frame size is invalid")

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func AppendFrame(b []byte, f Frame) []byte {
	b = appendString(b, frameHello, string(f.Hello))
	for _, lsa := range f.LSAs {
		var m []byte
		m = appendString(m, lsaOrigin, string(lsa.Origin))
		m = appendString(m, lsaNeighbor, lsa.Neighbor)
		m = appendVarint(m, lsaCost, uint64(lsa.Cost))
		m = appendVarint(m, lsaSeqno, uint64(lsa.Seqno))
		m = appendString(m, lsaForward, string(lsa.Forward))
		b = appendMessage(b, frameLSA, m)
	}
	if f.Change != nil {
		var m []byte
		m = appendString(m, changeOrigin, string(f.Change.Source.Origin))
		m = appendVarint(m, changeSeqno, uint64(f.Change.Source.Seqno))
		for _, op := range f.Change.Ops {
			var o []byte
			// kinds start at zero, so the kind is always written
			o = protowire.AppendTag(o, opKind, protowire.VarintType)
			o = protowire.AppendVarint(o, uint64(op.Kind))
			o = appendString(o, opRouter, string(op.Router))
			o = appendString(o, opPeer, string(op.Peer))
			if op.Prefix.IsValid() {
				o = appendString(o, opPrefix, op.Prefix.String())
			}
			o = appendVarint(o, opCost, uint64(op.Cost))
			m = appendMessage(m, changeOp, o)
		}
		b = appendMessage(b, frameChange, m)
	}
	return b
}

// fields walks the fields of a message, calling fn with the raw value of each bytes or varint field
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := fn(num, typ, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := fn(num, typ, 0, raw); err != nil {
				return err
			}
		default:
			// unknown fields are skipped
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func u32(num protowire.Number, v uint64) (uint32, error) {
	if v > 0xffffffff {
		return 0, fmt.Errorf("field %d overflows: %d", num, v)
	}
	return uint32(v), nil
}

func parseLSA(b []byte) (state.LSA, error) {
	var lsa state.LSA
	err := fields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		var err error
		switch num {
		case lsaOrigin:
			lsa.Origin = state.NodeId(raw)
		case lsaNeighbor:
			lsa.Neighbor = string(raw)
		case lsaCost:
			lsa.Cost, err = u32(num, v)
		case lsaSeqno:
			lsa.Seqno, err = u32(num, v)
		case lsaForward:
			lsa.Forward = state.RouterId(raw)
		}
		return err
	})
	return lsa, err
}

func parseOp(b []byte) (state.TopologyOp, error) {
	var op state.TopologyOp
	err := fields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		var err error
		switch num {
		case opKind:
			op.Kind = state.OpKind(v)
		case opRouter:
			op.Router = state.RouterId(raw)
		case opPeer:
			op.Peer = state.RouterId(raw)
		case opPrefix:
			op.Prefix, err = netip.ParsePrefix(string(raw))
		case opCost:
			op.Cost, err = u32(num, v)
		}
		return err
	})
	return op, err
}

func parseChange(b []byte) (*state.TopologyChange, error) {
	change := &state.TopologyChange{}
	err := fields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		var err error
		switch num {
		case changeOrigin:
			change.Source.Origin = state.RouterId(raw)
		case changeSeqno:
			change.Source.Seqno, err = u32(num, v)
		case changeOp:
			var op state.TopologyOp
			op, err = parseOp(raw)
			change.Ops = append(change.Ops, op)
		}
		return err
	})
	return change, err
}

func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	err := fields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case frameHello:
			f.Hello = state.RouterId(raw)
		case frameLSA:
			lsa, err := parseLSA(raw)
			if err != nil {
				return fmt.Errorf("lsa: %w", err)
			}
			f.LSAs = append(f.LSAs, lsa)
		case frameChange:
			change, err := parseChange(raw)
			if err != nil {
				return fmt.Errorf("topology change: %w", err)
			}
			f.Change = change
		}
		return nil
	})
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", state.ErrMalformedTopologyEvent, err)
	}
	return f, nil
}

// WriteFrame writes f prefixed by its big-endian length
func WriteFrame(w io.Writer, f Frame) error {
	payload := AppendFrame(nil, f)
	if len(payload) == 0 || len(payload) > state.MaxFrameSize {
		return errFrameSize
	}
	out := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(payload)), uint32(len(payload)))
	_, err := w.Write(append(out, payload...))
	return err
}

func ReadFrame(r io.Reader) (Frame, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Frame{}, err
	}
	if length == 0 || length > state.MaxFrameSize {
		return Frame{}, errFrameSize
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Frame{}, err
	}
	return ParseFrame(data)
}
