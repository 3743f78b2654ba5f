package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Blob layout (little endian):
//
//	magic   [4]byte "GKVX"
//	version uint16
//	dims    uint32
//	count   uint64
//	data    count*dims float32
//
// Both backends read and write this format, so a snapshot written by one can be
// loaded into the other.
var blobMagic = [4]byte{'G', 'K', 'V', 'X'}

const blobVersion uint16 = 1

// ErrCorruptBlob is returned by Decode when the blob is truncated or malformed.
var ErrCorruptBlob = errors.New("corrupt vector blob")

type blobHeader struct {
	Magic   [4]byte
	Version uint16
	Dims    uint32
	Count   uint64
}

// Encode writes count vectors of dims float32 values, taken row-major from data.
func Encode(w io.Writer, dims int, data []float32) (int64, error) {
	count := 0
	if dims > 0 {
		count = len(data) / dims
	}
	bw := bufio.NewWriter(w)
	h := blobHeader{Magic: blobMagic, Version: blobVersion, Dims: uint32(dims), Count: uint64(count)}
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	written := int64(binary.Size(h))
	buf := make([]byte, 4)
	for _, v := range data[:count*dims] {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := bw.Write(buf); err != nil {
			return written, fmt.Errorf("write vectors: %w", err)
		}
		written += 4
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("flush vectors: %w", err)
	}
	return written, nil
}

// BlobHeaderSize is the encoded size of the blob header.
var BlobHeaderSize = binary.Size(blobHeader{})

// BlobInfo is the shape a blob header declares.
type BlobInfo struct {
	Dims  int
	Count uint64
}

// PayloadSize returns the number of vector bytes that follow the header.
func (b BlobInfo) PayloadSize() uint64 {
	return b.Count * uint64(b.Dims) * 4
}

// ParseHeader decodes and validates a blob header from its first BlobHeaderSize bytes.
func ParseHeader(p []byte) (BlobInfo, error) {
	var h blobHeader
	if _, err := binary.Decode(p, binary.LittleEndian, &h); err != nil {
		return BlobInfo{}, fmt.Errorf("%w: read header: %w", ErrCorruptBlob, err)
	}
	return h.info()
}

// maxFloats bounds what a header may declare, so the row count times the dimension
// cannot overflow.
const maxFloats = 1 << 34

func (h blobHeader) info() (BlobInfo, error) {
	if h.Magic != blobMagic {
		return BlobInfo{}, fmt.Errorf("%w: bad magic %q", ErrCorruptBlob, h.Magic[:])
	}
	if h.Version != blobVersion {
		return BlobInfo{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptBlob, h.Version)
	}
	if h.Dims == 0 && h.Count != 0 {
		return BlobInfo{}, fmt.Errorf("%w: %d vectors with zero dimension", ErrCorruptBlob, h.Count)
	}
	if h.Dims != 0 && h.Count > maxFloats/uint64(h.Dims) {
		return BlobInfo{}, fmt.Errorf("%w: implausible size %d x %d", ErrCorruptBlob, h.Count, h.Dims)
	}
	return BlobInfo{Dims: int(h.Dims), Count: h.Count}, nil
}

// decodeBatch is how many floats Decode reads per step. Memory grows with the
// bytes actually present, not with what the header claims.
const decodeBatch = 1 << 16

// Decode reads a blob written by Encode and returns the dimension and row-major data.
// Non-finite values are rejected.
func Decode(r io.Reader) (dims int, data []float32, read int64, err error) {
	var h blobHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return 0, nil, 0, fmt.Errorf("%w: read header: %w", ErrCorruptBlob, err)
	}
	read = int64(BlobHeaderSize)
	info, err := h.info()
	if err != nil {
		return 0, nil, read, err
	}

	total := info.Count * uint64(info.Dims)
	data = make([]float32, 0, min(total, decodeBatch))
	raw := make([]byte, 4*min(total, decodeBatch))
	for remaining := total; remaining > 0; {
		step := min(remaining, decodeBatch)
		n, err := io.ReadFull(r, raw[:step*4])
		read += int64(n)
		if err != nil {
			return 0, nil, read, fmt.Errorf("%w: read vectors: %w", ErrCorruptBlob, err)
		}
		for i := range int(step) {
			v := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return 0, nil, read, fmt.Errorf("%w: non-finite value at offset %d", ErrCorruptBlob, len(data))
			}
			data = append(data, v)
		}
		remaining -= step
	}
	return info.Dims, data, read, nil
}
