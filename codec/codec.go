// Package codec implements the little-endian binary layout shared by every
// account and event of the registry: fixed-width integers, 32-byte keys,
// u32-length-prefixed strings and vectors, and single-byte option tags.
// The layout is a subset of borsh, read and written with gagliardetto/binary.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/minio/sha256-simd"
	"github.com/ruteri/compressed-tree-registry/interfaces"
)

// DiscriminatorLength is the size of the type tag prefixing accounts and instructions.
const DiscriminatorLength = 8

// AccountDiscriminator tags the data of an account holding the named type.
func AccountDiscriminator(name string) [DiscriminatorLength]byte {
	return discriminator("account:" + name)
}

// InstructionDiscriminator tags the data of the named instruction.
func InstructionDiscriminator(name string) [DiscriminatorLength]byte {
	return discriminator("global:" + name)
}

// InstructionEncoder returns an encoder that already holds the discriminator of the named instruction.
func InstructionEncoder(name string, capacity int) *Encoder {
	d := InstructionDiscriminator(name)
	enc := NewEncoder(DiscriminatorLength + capacity)
	enc.Raw(d[:])
	return enc
}

// SplitDiscriminator separates the type tag from the payload.
func SplitDiscriminator(data []byte) ([DiscriminatorLength]byte, []byte, bool) {
	var d [DiscriminatorLength]byte
	if len(data) < DiscriminatorLength {
		return d, nil, false
	}
	copy(d[:], data)
	return d, data[DiscriminatorLength:], true
}

func discriminator(preimage string) [DiscriminatorLength]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [DiscriminatorLength]byte
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// ErrShortBuffer is returned when a decoder runs past the end of its input.
var ErrShortBuffer = errors.New("codec: short buffer")

// Encoder appends borsh encoded values to an in-memory buffer.
type Encoder struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

// NewEncoder returns an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	buf := bytes.NewBuffer(make([]byte, 0, capacity))
	return &Encoder{buf: buf, enc: bin.NewBorshEncoder(buf)}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Err returns the first write error. Writes to the in-memory buffer do not fail in practice.
func (e *Encoder) Err() error {
	return e.err
}

func (e *Encoder) record(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

func (e *Encoder) U8(v uint8) {
	e.record(e.enc.WriteUint8(v))
}

func (e *Encoder) Bool(v bool) {
	e.record(e.enc.WriteBool(v))
}

func (e *Encoder) U16(v uint16) {
	e.record(e.enc.WriteUint16(v, bin.LE))
}

func (e *Encoder) U32(v uint32) {
	e.record(e.enc.WriteUint32(v, bin.LE))
}

func (e *Encoder) U64(v uint64) {
	e.record(e.enc.WriteUint64(v, bin.LE))
}

// Raw appends b without a length prefix.
func (e *Encoder) Raw(b []byte) {
	e.record(e.enc.WriteBytes(b, false))
}

// Zeros appends n zero bytes.
func (e *Encoder) Zeros(n int) {
	e.Raw(make([]byte, n))
}

func (e *Encoder) Pubkey(k interfaces.Pubkey) {
	e.Raw(k[:])
}

func (e *Encoder) Hash(h interfaces.Hash) {
	e.Raw(h[:])
}

// String writes a u32 byte length followed by the UTF-8 bytes.
func (e *Encoder) String(s string) {
	e.record(e.enc.WriteBytes([]byte(s), true))
}

// VecBytes writes a u32 length followed by b.
func (e *Encoder) VecBytes(b []byte) {
	e.record(e.enc.WriteBytes(b, true))
}

// OptionTag writes the option discriminant and reports whether a value follows.
func (e *Encoder) OptionTag(present bool) bool {
	e.Bool(present)
	return present
}

// Decoder reads borsh encoded values from a byte slice. Bounds are checked before
// every read so a truncated input fails with ErrShortBuffer.
type Decoder struct {
	dec  *bin.Decoder
	size int
	off  int
	err  error
}

// NewDecoder returns a decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{dec: bin.NewBorshDecoder(data), size: len(data)}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

// Fail records err unless an earlier error is already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Offset returns the current read position.
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return d.size - d.off
}

// reserve checks that n more bytes are available and advances the position.
func (d *Decoder) reserve(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.off+n > d.size {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.off, d.size-d.off)
		return false
	}
	d.off += n
	return true
}

func (d *Decoder) U8() uint8 {
	if !d.reserve(1) {
		return 0
	}
	v, err := d.dec.ReadUint8()
	d.Fail(err)
	return v
}

func (d *Decoder) Bool() bool {
	v := d.U8()
	if v > 1 && d.err == nil {
		d.err = fmt.Errorf("codec: invalid bool byte %d at offset %d", v, d.off-1)
	}
	return v == 1
}

func (d *Decoder) U16() uint16 {
	if !d.reserve(2) {
		return 0
	}
	v, err := d.dec.ReadUint16(bin.LE)
	d.Fail(err)
	return v
}

func (d *Decoder) U32() uint32 {
	if !d.reserve(4) {
		return 0
	}
	v, err := d.dec.ReadUint32(bin.LE)
	d.Fail(err)
	return v
}

func (d *Decoder) U64() uint64 {
	if !d.reserve(8) {
		return 0
	}
	v, err := d.dec.ReadUint64(bin.LE)
	d.Fail(err)
	return v
}

// Raw reads n bytes without a length prefix. The result may alias the input.
func (d *Decoder) Raw(n int) []byte {
	if !d.reserve(n) {
		return nil
	}
	b, err := d.dec.ReadNBytes(n)
	if err != nil {
		d.Fail(err)
		return nil
	}
	return b
}

// Skip advances past n bytes.
func (d *Decoder) Skip(n int) {
	d.Raw(n)
}

func (d *Decoder) Pubkey() interfaces.Pubkey {
	var k interfaces.Pubkey
	copy(k[:], d.Raw(interfaces.PubkeyLength))
	return k
}

func (d *Decoder) Hash() interfaces.Hash {
	var h interfaces.Hash
	copy(h[:], d.Raw(len(h)))
	return h
}

// String reads a u32-length-prefixed string. maxLen bounds the accepted length.
func (d *Decoder) String(maxLen int) string {
	n := d.U32()
	if d.err == nil && int(n) > maxLen {
		d.err = fmt.Errorf("codec: string length %d exceeds %d", n, maxLen)
		return ""
	}
	return string(d.Raw(int(n)))
}

// VecLen reads a u32 vector length bounded by maxLen.
func (d *Decoder) VecLen(maxLen int) int {
	n := d.U32()
	if d.err == nil && int(n) > maxLen {
		d.err = fmt.Errorf("codec: vector length %d exceeds %d", n, maxLen)
		return 0
	}
	return int(n)
}

// OptionTag reads an option discriminant.
func (d *Decoder) OptionTag() bool {
	return d.Bool()
}

// Finish returns the decoding error, if any, or an error when trailing bytes remain.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != d.size {
		return fmt.Errorf("codec: %d trailing bytes", d.size-d.off)
	}
	return nil
}
