// Package codec decodes and encodes the length-prefixed binary vector layout stored in doc values.
//
// Layout: VInt value count (always 1, read and discarded), VInt payload byte length, packed
// float64 values, then an optional trailing float64 norm that is counted in the payload length.
// The norm is written in the same byte order as the values.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

// DoubleSize is the encoded size of one float64.
const DoubleSize = 8

// maxVIntBytes bounds a VInt to 5 bytes, enough for a 32-bit value.
const maxVIntBytes = 5

var (
	// ErrMalformedVarint is returned when a VInt is overlong or does not fit a non-negative int32.
	ErrMalformedVarint = errors.New("codec: malformed variable-length integer")
	// ErrTruncated is returned when the buffer ends before a header or the declared payload.
	ErrTruncated = errors.New("codec: truncated buffer")
	// ErrMissingNorm is returned when a stored norm is expected but the payload cannot hold one.
	ErrMissingNorm = errors.New("codec: payload too short for stored norm")
	// ErrMisaligned is returned when the vector payload is not a whole number of float64 values.
	ErrMisaligned = errors.New("codec: vector payload is not a multiple of 8 bytes")
	// ErrInsufficientData is returned when the payload holds fewer values than the query dimension.
	ErrInsufficientData = errors.New("codec: insufficient vector data for dimension")
)

// ByteOrder reads and appends fixed-size values. binary.LittleEndian and binary.BigEndian satisfy it.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Codec reads and writes one field's vector layout. A Codec is immutable and safe for concurrent use.
type Codec struct {
	order      ByteOrder
	storedNorm bool
}

// Option configures a Codec.
type Option func(*Codec)

// WithByteOrder sets the byte order of the packed values and the stored norm.
// Defaults to little-endian.
func WithByteOrder(order ByteOrder) Option {
	return func(c *Codec) {
		if order != nil {
			c.order = order
		}
	}
}

// New creates a codec. When storedNorm is true the last 8 payload bytes hold the vector norm.
func New(storedNorm bool, opts ...Option) *Codec {
	c := &Codec{order: binary.LittleEndian, storedNorm: storedNorm}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StoredNorm reports whether the layout carries a trailing norm.
func (c *Codec) StoredNorm() bool {
	return c.storedNorm
}

// ByteOrder returns the byte order used for float64 values.
func (c *Codec) ByteOrder() ByteOrder {
	return c.order
}

// Decode fills dst with the first len(dst) values of raw and returns the stored norm
// (0 when the codec has no stored norm). raw is only read during the call. Decode does not allocate.
func (c *Codec) Decode(dst []float64, raw []byte) (float64, error) {
	// value count, must be consumed to reach the length
	_, n, err := readVInt(raw)
	if err != nil {
		return 0, err
	}
	pos := n

	length, n, err := readVInt(raw[pos:])
	if err != nil {
		return 0, err
	}
	pos += n

	if len(raw)-pos < length {
		return 0, ErrTruncated
	}

	effective := length
	if c.storedNorm {
		if length < DoubleSize {
			return 0, ErrMissingNorm
		}
		effective -= DoubleSize
	}
	if effective%DoubleSize != 0 {
		return 0, ErrMisaligned
	}
	if effective < len(dst)*DoubleSize {
		return 0, ErrInsufficientData
	}

	payload := raw[pos : pos+effective]
	for i := range dst {
		dst[i] = math.Float64frombits(c.order.Uint64(payload[i*DoubleSize:]))
	}

	if !c.storedNorm {
		return 0, nil
	}
	normAt := pos + effective
	return math.Float64frombits(c.order.Uint64(raw[normAt : normAt+DoubleSize])), nil
}

// Encode returns the encoded form of vec. When the codec has a stored norm, Norm(vec) is appended.
func (c *Codec) Encode(vec []float64) []byte {
	size := 2*maxVIntBytes + (len(vec)+1)*DoubleSize
	return c.AppendEncode(make([]byte, 0, size), vec)
}

// AppendEncode appends the encoded form of vec to dst and returns the extended buffer.
func (c *Codec) AppendEncode(dst []byte, vec []float64) []byte {
	length := len(vec) * DoubleSize
	if c.storedNorm {
		length += DoubleSize
	}
	dst = appendVInt(dst, 1)
	dst = appendVInt(dst, uint32(length))
	for _, v := range vec {
		dst = c.order.AppendUint64(dst, math.Float64bits(v))
	}
	if c.storedNorm {
		dst = c.order.AppendUint64(dst, math.Float64bits(Norm(vec)))
	}
	return dst
}

// Norm returns the L2 norm of vec.
func Norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// readVInt reads a VInt (7 bits per byte, low-order group first) and returns the value and bytes read.
func readVInt(b []byte) (int, int, error) {
	v, n := binary.Uvarint(b)
	switch {
	case n == 0:
		return 0, 0, ErrTruncated
	case n < 0, n > maxVIntBytes, v > math.MaxInt32:
		return 0, 0, ErrMalformedVarint
	}
	return int(v), n, nil
}

func appendVInt(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}
