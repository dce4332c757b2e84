package vector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the vector payload is stored on disk.
type Compression uint8

const (
	// CompressionNone stores raw little-endian float32s.
	CompressionNone Compression = 0
	// CompressionLZ4 stores an LZ4 block (fast, modest ratio).
	CompressionLZ4 Compression = 1
	// CompressionZSTD stores a zstd frame (slower, better ratio).
	CompressionZSTD Compression = 2
)

// ParseCompression maps a config value ("none", "lz4", "zstd") to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q (supported: none, lz4, zstd)", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ErrCorruptIndex is returned by ReadIndex when the artifact cannot be parsed.
var ErrCorruptIndex = errors.New("corrupt vector index")

const (
	codecVersion = 1
	// maxRawBytes bounds the decoded payload size a header may declare.
	maxRawBytes = 1 << 34
	// lz4MaxRatio is the largest expansion an LZ4 block can encode: each
	// length byte extends a match by at most 255 bytes.
	lz4MaxRatio = 255
)

var codecMagic = [4]byte{'Y', 'V', 'E', 'C'}

// fileHeader is the fixed-size little-endian header preceding the payload.
type fileHeader struct {
	Magic       [4]byte
	Version     uint16
	Compression uint8
	Reserved    uint8
	Dim         uint32
	Count       uint64
	RawLen      uint64
	Checksum    uint32
	StoredLen   uint64
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdErr  error
)

func zstdEncoder() (*zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return zstdEnc, zstdErr
}

// WriteIndex serializes idx to w. When compression does not shrink the payload
// it is stored raw and the header records CompressionNone.
func WriteIndex(w io.Writer, idx *FlatIndex, c Compression) error {
	raw := float32SliceToBytes(idx.raw())
	stored := raw
	used := CompressionNone
	if len(raw) > 0 {
		switch c {
		case CompressionNone:
		case CompressionLZ4:
			buf := make([]byte, lz4.CompressBlockBound(len(raw)))
			var comp lz4.Compressor
			n, err := comp.CompressBlock(raw, buf)
			if err != nil {
				return fmt.Errorf("lz4 compress: %w", err)
			}
			if n > 0 && n < len(raw) {
				stored, used = buf[:n], CompressionLZ4
			}
		case CompressionZSTD:
			enc, err := zstdEncoder()
			if err != nil {
				return fmt.Errorf("zstd init: %w", err)
			}
			if out := enc.EncodeAll(raw, nil); len(out) < len(raw) {
				stored, used = out, CompressionZSTD
			}
		default:
			return fmt.Errorf("unsupported compression %s", c)
		}
	}
	hdr := fileHeader{
		Magic:       codecMagic,
		Version:     codecVersion,
		Compression: uint8(used),
		Dim:         uint32(idx.Dim()),
		Count:       uint64(idx.Len()),
		RawLen:      uint64(len(raw)),
		Checksum:    crc32.ChecksumIEEE(raw),
		StoredLen:   uint64(len(stored)),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadIndex parses an index written by WriteIndex. Any structural problem is
// reported as an error wrapping ErrCorruptIndex; read failures of r that are
// not caused by truncation are returned unwrapped.
func ReadIndex(r io.Reader) (*FlatIndex, error) {
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrCorruptIndex)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != codecMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, hdr.Magic[:])
	}
	if hdr.Version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, hdr.Version)
	}
	if hdr.Dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrCorruptIndex)
	}
	if hdr.Count > maxRawBytes/4/uint64(hdr.Dim) {
		return nil, fmt.Errorf("%w: vector count %d too large", ErrCorruptIndex, hdr.Count)
	}
	if want := hdr.Count * uint64(hdr.Dim) * 4; hdr.RawLen != want {
		return nil, fmt.Errorf("%w: payload length %d, expected %d", ErrCorruptIndex, hdr.RawLen, want)
	}
	if hdr.StoredLen > hdr.RawLen {
		return nil, fmt.Errorf("%w: stored length %d exceeds raw length %d", ErrCorruptIndex, hdr.StoredLen, hdr.RawLen)
	}

	stored, err := io.ReadAll(io.LimitReader(r, int64(hdr.StoredLen)))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if uint64(len(stored)) != hdr.StoredLen {
		return nil, fmt.Errorf("%w: truncated payload (%d of %d bytes)", ErrCorruptIndex, len(stored), hdr.StoredLen)
	}
	var trailing [1]byte
	if n, _ := r.Read(trailing[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrCorruptIndex)
	}

	raw, err := decompress(Compression(hdr.Compression), stored, int(hdr.RawLen))
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(raw) != hdr.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	idx, err := NewFlatIndex(int(hdr.Dim))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	idx.data = bytesToFloat32Slice(raw)
	return idx, nil
}

// decompress never allocates more than the stored payload can decode to, so a
// damaged header fails as ErrCorruptIndex instead of exhausting memory.
func decompress(c Compression, stored []byte, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(stored) != rawLen {
			return nil, fmt.Errorf("%w: raw payload length mismatch", ErrCorruptIndex)
		}
		return stored, nil
	case CompressionLZ4:
		if len(stored) == 0 || uint64(rawLen) > uint64(len(stored))*lz4MaxRatio {
			return nil, fmt.Errorf("%w: lz4 payload of %d bytes cannot decode to %d", ErrCorruptIndex, len(stored), rawLen)
		}
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil || n != rawLen {
			return nil, fmt.Errorf("%w: lz4 payload: decoded %d of %d bytes: %v", ErrCorruptIndex, n, rawLen, err)
		}
		return raw, nil
	case CompressionZSTD:
		if len(stored) == 0 || rawLen == 0 {
			return nil, fmt.Errorf("%w: empty zstd payload", ErrCorruptIndex)
		}
		// The output buffer grows with what the frames actually decode to,
		// capped at the size the header declares.
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(rawLen)))
		if err != nil {
			return nil, fmt.Errorf("zstd init: %w", err)
		}
		defer dec.Close()
		raw, err := dec.DecodeAll(stored, nil)
		if err != nil || len(raw) != rawLen {
			return nil, fmt.Errorf("%w: zstd payload: decoded %d of %d bytes: %v", ErrCorruptIndex, len(raw), rawLen, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorruptIndex, uint8(c))
	}
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// EncodeIndex is WriteIndex into a fresh byte slice.
func EncodeIndex(idx *FlatIndex, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteIndex(&buf, idx, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
