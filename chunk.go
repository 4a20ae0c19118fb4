// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"go.mozilla.org/pkcs7"
)

// Precompiled-chunk header fields (spec §6 "Bytecode and precompiled chunk
// format"). The magic bytes mirror the original's ESC+"Lua" signature;
// sizes and test values let the loader refuse a chunk built for a
// different word width or endianness before it trusts a single byte of
// the body, the same discipline the teacher's dosheader.go applies to a
// PE's own magic-number-first parsing.
var chunkMagic = [4]byte{0x1B, 'L', 'u', 'a'}

const (
	chunkFormatVersion            = 0
	chunkSignature                = "\x19\x93\r\n\x1a\n" // six bytes, arbitrary but fixed
	chunkTestInt        int64     = 0x5678
	chunkTestFloat      float64   = 370.5
)

// ChunkHeader is the fixed-size preamble every dumped chunk begins with.
type ChunkHeader struct {
	Magic         [4]byte
	FormatVersion uint8
	EngineVersion string // semver, checked by versionCompatible
	SizeofInt     uint8
	SizeofSizeT   uint8
	SizeofInstr   uint8
	SizeofInteger uint8
	SizeofNumber  uint8
	TestInt       int64
	TestFloat     float64
}

func newChunkHeader() ChunkHeader {
	return ChunkHeader{
		Magic:         chunkMagic,
		FormatVersion: chunkFormatVersion,
		EngineVersion: EngineVersion,
		SizeofInt:     8,
		SizeofSizeT:   8,
		SizeofInstr:   4,
		SizeofInteger: 8,
		SizeofNumber:  8,
		TestInt:       chunkTestInt,
		TestFloat:     chunkTestFloat,
	}
}

// DumpOptions controls chunk serialization (spec §4.9 "dump"; the optional
// signature is a nyx addition, grounded on the teacher's security.go
// PE-signature verification machinery rather than on anything in
// original_source since the original lundump.c carries no signing step).
type DumpOptions struct {
	// SignCert and SignKey, when both set, produce a detached PKCS#7
	// signature over the chunk body (see Dump's return value).
	SignCert *x509.Certificate
	SignKey  crypto.PrivateKey
}

// LoadOptions controls chunk verification on load.
type LoadOptions struct {
	// RequireSignedChunks rejects any chunk not accompanied by a valid
	// detached PKCS#7 signature over its body.
	RequireSignedChunks bool
	// Verification checks the signature against the signer certificates
	// embedded in the signature itself; there is no option for a separate
	// pool of trusted certificates.
}

// Dump serializes proto as a precompiled chunk. The returned body is the
// header followed by the recursive prototype encoding; signature is
// non-nil only when opts.SignCert and opts.SignKey were both set.
func Dump(proto *FuncProto, opts *DumpOptions) (body []byte, signature []byte, err error) {
	var buf bytes.Buffer
	h := newChunkHeader()
	if err := writeHeader(&buf, h); err != nil {
		return nil, nil, err
	}
	if err := writeProto(&buf, proto); err != nil {
		return nil, nil, err
	}
	body = buf.Bytes()

	if opts != nil && opts.SignCert != nil && opts.SignKey != nil {
		sd, err := pkcs7.NewSignedData(body)
		if err != nil {
			return nil, nil, fmt.Errorf("nyx: sign chunk: %w", err)
		}
		sd.Detach()
		if err := sd.AddSigner(opts.SignCert, opts.SignKey, pkcs7.SignerInfoConfig{}); err != nil {
			return nil, nil, fmt.Errorf("nyx: sign chunk: %w", err)
		}
		sig, err := sd.Finish()
		if err != nil {
			return nil, nil, fmt.Errorf("nyx: sign chunk: %w", err)
		}
		signature = sig
	}
	return body, signature, nil
}

func writeHeader(w io.Writer, h ChunkHeader) error {
	if _, err := w.Write(h.Magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.FormatVersion); err != nil {
		return err
	}
	if err := writeLString(w, h.EngineVersion); err != nil {
		return err
	}
	if _, err := io.WriteString(w, chunkSignature); err != nil {
		return err
	}
	sizes := []uint8{h.SizeofInt, h.SizeofSizeT, h.SizeofInstr, h.SizeofInteger, h.SizeofNumber}
	for _, s := range sizes {
		if err := binary.Write(w, binary.LittleEndian, s); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, h.TestInt); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.TestFloat)
}

func readHeader(r io.Reader) (ChunkHeader, error) {
	var h ChunkHeader
	if _, err := io.ReadFull(r, h.Magic[:]); err != nil {
		return h, fmt.Errorf("nyx: read chunk magic: %w", err)
	}
	if h.Magic != chunkMagic {
		return h, ErrInvalidChunkSignature
	}
	if err := binary.Read(r, binary.LittleEndian, &h.FormatVersion); err != nil {
		return h, err
	}
	if h.FormatVersion != chunkFormatVersion {
		return h, ErrInvalidChunkSignature
	}
	ver, err := readLString(r)
	if err != nil {
		return h, err
	}
	h.EngineVersion = ver

	sig := make([]byte, len(chunkSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return h, err
	}
	if string(sig) != chunkSignature {
		return h, ErrInvalidChunkSignature
	}

	sizes := make([]uint8, 5)
	for i := range sizes {
		if err := binary.Read(r, binary.LittleEndian, &sizes[i]); err != nil {
			return h, err
		}
	}
	h.SizeofInt, h.SizeofSizeT, h.SizeofInstr, h.SizeofInteger, h.SizeofNumber =
		sizes[0], sizes[1], sizes[2], sizes[3], sizes[4]

	if err := binary.Read(r, binary.LittleEndian, &h.TestInt); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.TestFloat); err != nil {
		return h, err
	}
	if h.TestInt != chunkTestInt || h.TestFloat != chunkTestFloat {
		return h, ErrInvalidChunkSignature
	}
	if !versionCompatible(h.EngineVersion) {
		return h, ErrIncompatibleVersion
	}
	return h, nil
}

// Load deserializes a chunk previously produced by Dump, interning every
// embedded string constant and name through g's string table so they
// share identity with the rest of the running engine (spec §4.2). When
// opts.RequireSignedChunks is set, signature must be a detached PKCS#7
// signature over body and is verified before any byte of body is parsed;
// otherwise signature is ignored.
func Load(g *GlobalState, body []byte, signature []byte, opts *LoadOptions) (*FuncProto, error) {
	if opts != nil && opts.RequireSignedChunks {
		if signature == nil {
			return nil, ErrChunkSignatureInvalid
		}
		p7, err := pkcs7.Parse(signature)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChunkSignatureInvalid, err)
		}
		p7.Content = body
		if err := p7.Verify(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChunkSignatureInvalid, err)
		}
	}

	r := bytes.NewReader(body)
	if _, err := readHeader(r); err != nil {
		return nil, err
	}
	return readProto(g, r)
}

// LoadFile memory-maps path and loads a chunk from it, avoiding a full
// copy into the Go heap for large precompiled bundles (grounded on
// stack.go's use of mmap-go for the same reason: oversized allocations
// shouldn't pressure the GC's own bookkeeping).
func LoadFile(g *GlobalState, path string, sigPath string, opts *LoadOptions) (*FuncProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer m.Unmap()

	var sig []byte
	if sigPath != "" {
		sig, err = os.ReadFile(sigPath)
		if err != nil {
			return nil, err
		}
	}
	return Load(g, m, sig, opts)
}

func writeLString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// writeProto/readProto recursively (de)serialize a FuncProto: source name,
// line range, parameter/vararg/stack-size header, code vector, constants,
// upvalue descriptors, nested prototypes, then debug info — the exact
// section order spec §6 lists.
func writeProto(w io.Writer, p *FuncProto) error {
	if err := writeLString(w, p.Source); err != nil {
		return err
	}
	for _, v := range []int64{int64(p.LineDefined), int64(p.LastLineDefined), int64(p.NumParams), int64(p.MaxStack)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, p.IsVararg); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(p.Code))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, p.Code); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(p.Constants))); err != nil {
		return err
	}
	for _, c := range p.Constants {
		if err := writeConstant(w, c); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(p.Upvalues))); err != nil {
		return err
	}
	for _, uv := range p.Upvalues {
		if err := binary.Write(w, binary.LittleEndian, uv.InStack); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(uv.Index)); err != nil {
			return err
		}
		name := ""
		if uv.Name != nil {
			name = uv.Name.String()
		}
		if err := writeLString(w, name); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(p.Protos))); err != nil {
		return err
	}
	for _, sub := range p.Protos {
		if err := writeProto(w, sub); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(p.LineInfo))); err != nil {
		return err
	}
	for _, ln := range p.LineInfo {
		if err := binary.Write(w, binary.LittleEndian, int64(ln)); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(p.LocVars))); err != nil {
		return err
	}
	for _, lv := range p.LocVars {
		name := ""
		if lv.Name != nil {
			name = lv.Name.String()
		}
		if err := writeLString(w, name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int64(lv.StartPC)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int64(lv.EndPC)); err != nil {
			return err
		}
	}
	return nil
}

func readProto(g *GlobalState, r io.Reader) (*FuncProto, error) {
	p := NewFuncProto()

	src, err := readLString(r)
	if err != nil {
		return nil, err
	}
	p.Source = src

	var lineDefined, lastLineDefined, numParams, maxStack int64
	for _, dst := range []*int64{&lineDefined, &lastLineDefined, &numParams, &maxStack} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, err
		}
	}
	p.LineDefined, p.LastLineDefined, p.NumParams, p.MaxStack =
		int(lineDefined), int(lastLineDefined), int(numParams), int(maxStack)

	if err := binary.Read(r, binary.LittleEndian, &p.IsVararg); err != nil {
		return nil, err
	}

	var nCode uint64
	if err := binary.Read(r, binary.LittleEndian, &nCode); err != nil {
		return nil, err
	}
	p.Code = make([]uint32, nCode)
	if err := binary.Read(r, binary.LittleEndian, p.Code); err != nil {
		return nil, err
	}

	var nConst uint64
	if err := binary.Read(r, binary.LittleEndian, &nConst); err != nil {
		return nil, err
	}
	p.Constants = make([]Value, nConst)
	for i := range p.Constants {
		c, err := readConstant(g, r)
		if err != nil {
			return nil, err
		}
		p.Constants[i] = c
	}

	var nUp uint64
	if err := binary.Read(r, binary.LittleEndian, &nUp); err != nil {
		return nil, err
	}
	p.Upvalues = make([]upvalDesc, nUp)
	for i := range p.Upvalues {
		var inStack bool
		var idx uint64
		if err := binary.Read(r, binary.LittleEndian, &inStack); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return nil, err
		}
		name, err := readLString(r)
		if err != nil {
			return nil, err
		}
		p.Upvalues[i] = upvalDesc{InStack: inStack, fromLocal: inStack, Index: int(idx)}
		if name != "" {
			p.Upvalues[i].Name = g.Strings.intern([]byte(name))
		}
	}

	var nSub uint64
	if err := binary.Read(r, binary.LittleEndian, &nSub); err != nil {
		return nil, err
	}
	p.Protos = make([]*FuncProto, nSub)
	for i := range p.Protos {
		sub, err := readProto(g, r)
		if err != nil {
			return nil, err
		}
		p.Protos[i] = sub
	}

	var nLines uint64
	if err := binary.Read(r, binary.LittleEndian, &nLines); err != nil {
		return nil, err
	}
	p.LineInfo = make([]int, nLines)
	for i := range p.LineInfo {
		var ln int64
		if err := binary.Read(r, binary.LittleEndian, &ln); err != nil {
			return nil, err
		}
		p.LineInfo[i] = int(ln)
	}

	var nLoc uint64
	if err := binary.Read(r, binary.LittleEndian, &nLoc); err != nil {
		return nil, err
	}
	p.LocVars = make([]localVar, nLoc)
	for i := range p.LocVars {
		name, err := readLString(r)
		if err != nil {
			return nil, err
		}
		var start, end int64
		if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &end); err != nil {
			return nil, err
		}
		p.LocVars[i] = localVar{StartPC: int(start), EndPC: int(end)}
		if name != "" {
			p.LocVars[i].Name = g.Strings.intern([]byte(name))
		}
	}

	return p, nil
}

// constant tags, one byte each, preceding the encoded value (spec §6
// "constants (tagged)").
const (
	constTagNil byte = iota
	constTagFalse
	constTagTrue
	constTagInt
	constTagFloat
	constTagString
)

func writeConstant(w io.Writer, v Value) error {
	switch {
	case v.IsNil():
		_, err := w.Write([]byte{constTagNil})
		return err
	case v.IsBoolean():
		tag := constTagFalse
		if v.AsBool() {
			tag = constTagTrue
		}
		_, err := w.Write([]byte{byte(tag)})
		return err
	case v.IsInt():
		if _, err := w.Write([]byte{constTagInt}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.AsInt())
	case v.IsFloat():
		if _, err := w.Write([]byte{constTagFloat}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.AsFloat())
	case v.IsString():
		if _, err := w.Write([]byte{constTagString}); err != nil {
			return err
		}
		return writeLString(w, asString(v).String())
	default:
		return fmt.Errorf("nyx: constant of type %s is not dumpable", v.Type())
	}
}

func readConstant(g *GlobalState, r io.Reader) (Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Nil, err
	}
	switch tag[0] {
	case constTagNil:
		return Nil, nil
	case constTagFalse:
		return False, nil
	case constTagTrue:
		return True, nil
	case constTagInt:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Nil, err
		}
		return Int(n), nil
	case constTagFloat:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return Nil, err
		}
		return Float(f), nil
	case constTagString:
		s, err := readLString(r)
		if err != nil {
			return Nil, err
		}
		return g.NewString(s), nil
	default:
		return Nil, fmt.Errorf("nyx: unknown constant tag %d", tag[0])
	}
}

// Fuzz is a legacy go-fuzz entry point exercising the loader against
// arbitrary byte streams (mirroring the teacher's fuzz.go harness over
// malformed PE headers). Returns 1 when data parsed as a well-formed
// chunk, 0 otherwise; go-fuzz's corpus-mutation loop treats 1 as
// "interesting, keep exploring around this input".
func Fuzz(data []byte) int {
	g := NewGlobalState(nil)
	if _, err := Load(g, data, nil, nil); err != nil {
		return 0
	}
	return 1
}
