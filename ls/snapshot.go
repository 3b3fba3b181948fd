package ls

import (
	"bytes"
	"fmt"
	"io"

	"github.com/blang/semver/v4"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/smtkit/bvls/bv"
)

// SnapshotVersion gates snapshot compatibility; restores accept the same
// major version only.
const SnapshotVersion = "1.0.0"

type snapshotNode struct {
	Kind       uint8    `cbor:"1,keyasint"`
	Children   []uint32 `cbor:"2,keyasint,omitempty"`
	Imm0       uint32   `cbor:"3,keyasint,omitempty"`
	Imm1       uint32   `cbor:"4,keyasint,omitempty"`
	Width      uint32   `cbor:"5,keyasint"`
	Assignment uint64   `cbor:"6,keyasint"`
	DomLo      uint64   `cbor:"7,keyasint"`
	DomHi      uint64   `cbor:"8,keyasint"`
	ID         uint64   `cbor:"9,keyasint"`
	NormID     uint64   `cbor:"10,keyasint"`
}

type snapshotBody struct {
	Nodes []snapshotNode `cbor:"1,keyasint"`
	Roots []uint32       `cbor:"2,keyasint,omitempty"`
}

type snapshotEnvelope struct {
	Version  string          `cbor:"1,keyasint"`
	Checksum []byte          `cbor:"2,keyasint"`
	Body     cbor.RawMessage `cbor:"3,keyasint"`
}

// Snapshot dumps the DAG (structure, assignments, domains, ids) as a
// checksummed CBOR blob for restart replay and offline debugging.
func (s *LocalSearch) Snapshot(w io.Writer) error {
	if s.dirty {
		panic("ls: Snapshot during unfinished rewrite, call Normalize first")
	}
	body := snapshotBody{Roots: s.roots}
	for i := range s.nodes {
		n := &s.nodes[i]
		body.Nodes = append(body.Nodes, snapshotNode{
			Kind:       uint8(n.kind),
			Children:   n.children,
			Imm0:       n.imm0,
			Imm1:       n.imm1,
			Width:      n.assignment.Width(),
			Assignment: n.assignment.Uint64(),
			DomLo:      n.domain.Lo().Uint64(),
			DomHi:      n.domain.Hi().Uint64(),
			ID:         n.id,
			NormID:     n.normalizedID,
		})
	}
	raw, err := cbor.Marshal(body)
	if err != nil {
		return fmt.Errorf("ls: encoding snapshot body: %w", err)
	}
	sum := blake2b.Sum256(raw)
	out, err := cbor.Marshal(snapshotEnvelope{
		Version:  SnapshotVersion,
		Checksum: sum[:],
		Body:     raw,
	})
	if err != nil {
		return fmt.Errorf("ls: encoding snapshot: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// Restore rebuilds a LocalSearch from a snapshot, with fresh randomness
// from cfg.Seed.
func Restore(r io.Reader, cfg Config) (*LocalSearch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var env snapshotEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("ls: decoding snapshot: %w", err)
	}
	have, err := semver.Parse(env.Version)
	if err != nil {
		return nil, fmt.Errorf("ls: bad snapshot version %q: %w", env.Version, err)
	}
	want := semver.MustParse(SnapshotVersion)
	if have.Major != want.Major {
		return nil, fmt.Errorf("ls: incompatible snapshot version %s, want %d.x", env.Version, want.Major)
	}
	sum := blake2b.Sum256(env.Body)
	if !bytes.Equal(sum[:], env.Checksum) {
		return nil, fmt.Errorf("ls: snapshot checksum mismatch")
	}
	var body snapshotBody
	if err := cbor.Unmarshal(env.Body, &body); err != nil {
		return nil, fmt.Errorf("ls: decoding snapshot body: %w", err)
	}

	s := New(cfg)
	for i := range body.Nodes {
		sn := &body.Nodes[i]
		kind := Kind(sn.Kind)
		if kind >= numKinds {
			return nil, fmt.Errorf("ls: snapshot node %d has unknown kind %d", i, sn.Kind)
		}
		if uint32(len(sn.Children)) != kind.Arity() {
			return nil, fmt.Errorf("ls: snapshot node %d: %s wants %d children, got %d",
				i, kind, kind.Arity(), len(sn.Children))
		}
		for _, c := range sn.Children {
			if c >= uint32(i) {
				return nil, fmt.Errorf("ls: snapshot node %d references child %d out of order", i, c)
			}
		}
		dom := bv.NewDomain(bv.FromUint64(sn.Width, sn.DomLo), bv.FromUint64(sn.Width, sn.DomHi))
		n := Node{
			kind:       kind,
			children:   sn.Children,
			imm0:       sn.Imm0,
			imm1:       sn.Imm1,
			assignment: bv.FromUint64(sn.Width, sn.Assignment),
			domain:     dom,
		}
		allValue := true
		for _, c := range sn.Children {
			if !s.nodes[c].isValue {
				allValue = false
			}
		}
		n.allValue = allValue
		n.isValue = dom.IsFixed()
		id := s.alloc(n)
		s.nodes[id].id = sn.ID
		s.nodes[id].normalizedID = sn.NormID
	}
	s.roots = body.Roots
	for _, root := range s.roots {
		if int(root) >= len(s.nodes) {
			return nil, fmt.Errorf("ls: snapshot root %d out of range", root)
		}
	}
	return s, nil
}
