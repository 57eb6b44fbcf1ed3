// Package snapshot implements the self-describing binary blob that caches a
// whole engine's state — sources, contents, names, and parsed segments —
// across processes without redoing VLQ encoding. A magic/version header
// guards against loading an incompatible blob; the payload is lz4-compressed,
// or stored as is when lz4 reports it incompressible.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/parcel-bundler/fast-source-map/errs"
	"github.com/parcel-bundler/fast-source-map/mapping"
)

const (
	magic   = "SMv1"
	version = uint16(1)
)

// Payload is the decoded form of a blob: everything needed to either
// replace an engine's state wholesale (fromBuffer) or merge as a donor
// batch (addBufferMappings). Segment ids (Source, Name) are exactly as the
// donor engine interned them — the caller is responsible for biasing them
// against its own intern tables before appending.
type Payload struct {
	Sources  []string
	Contents []string
	Names    []string
	Lines    [][]mapping.Segment
}

// Encode packs sources, their parallel contents, names, and the mapping
// table's lines into a versioned blob, lz4-compressed unless lz4 reports
// the payload incompressible.
func Encode(sources, contents, names []string, lines [][]mapping.Segment) ([]byte, error) {
	var body bytes.Buffer
	if err := writeStrings(&body, sources); err != nil {
		return nil, err
	}
	if err := writeStrings(&body, contents); err != nil {
		return nil, err
	}
	if err := writeStrings(&body, names); err != nil {
		return nil, err
	}
	if err := writeLines(&body, lines); err != nil {
		return nil, err
	}

	raw := body.Bytes()
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var c lz4.Compressor
	n, err := c.CompressBlock(raw, compressed)
	if err != nil && err != lz4.ErrInvalidSourceShortBuffer {
		return nil, errs.E(errs.Other, err)
	}
	// Incompressible input: CompressBlock returns n == 0. Store raw.
	wasCompressed := n > 0
	stored := compressed[:n]
	if !wasCompressed {
		stored = raw
	}

	var out bytes.Buffer
	out.WriteString(magic)
	binary.Write(&out, binary.LittleEndian, version)
	binary.Write(&out, binary.LittleEndian, wasCompressed)
	binary.Write(&out, binary.LittleEndian, uint32(len(raw)))
	binary.Write(&out, binary.LittleEndian, uint32(len(stored)))
	out.Write(stored)
	return out.Bytes(), nil
}

// Decode validates the header and unpacks a blob produced by Encode.
func Decode(data []byte) (*Payload, error) {
	const headerLen = 4 + 2 + 1 + 4 + 4
	if len(data) < headerLen {
		return nil, errs.E(errs.Incompatible, "snapshot: truncated header")
	}
	if string(data[:4]) != magic {
		return nil, errs.E(errs.Incompatible, fmt.Sprintf("snapshot: bad magic %q", data[:4]))
	}
	pos := 4
	gotVersion := binary.LittleEndian.Uint16(data[pos:])
	pos += 2
	if gotVersion != version {
		return nil, errs.E(errs.Incompatible, fmt.Sprintf("snapshot: version %d, want %d", gotVersion, version))
	}
	wasCompressed := data[pos] != 0
	pos++
	rawLen := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	storedLen := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	if len(data[pos:]) < int(storedLen) {
		return nil, errs.E(errs.Incompatible, "snapshot: truncated payload")
	}
	stored := data[pos : pos+int(storedLen)]

	var raw []byte
	if wasCompressed {
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil {
			return nil, errs.E(errs.Incompatible, err)
		}
		if uint32(n) != rawLen {
			return nil, errs.E(errs.Incompatible, "snapshot: decompressed size mismatch")
		}
	} else {
		raw = stored
	}

	r := bytes.NewReader(raw)
	sources, err := readStrings(r)
	if err != nil {
		return nil, err
	}
	contents, err := readStrings(r)
	if err != nil {
		return nil, err
	}
	names, err := readStrings(r)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	return &Payload{Sources: sources, Contents: contents, Names: names, Lines: lines}, nil
}

func writeStrings(w *bytes.Buffer, ss []string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		w.WriteString(s)
	}
	return nil
}

func readStrings(r *bytes.Reader) ([]string, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errs.E(errs.Incompatible, "snapshot: truncated string count")
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errs.E(errs.Incompatible, "snapshot: truncated string length")
		}
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return nil, errs.E(errs.Incompatible, "snapshot: truncated string body")
		}
		out = append(out, string(buf))
	}
	return out, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// segmentFields is the fixed-width, five-int32 wire shape of a Segment
// (GeneratedColumn, Source, OriginalLine, OriginalColumn, Name).
// GeneratedLine is implied by position in Lines and not stored.
type segmentFields struct {
	GeneratedColumn int32
	Source          int32
	OriginalLine    int32
	OriginalColumn  int32
	Name            int32
}

func writeLines(w *bytes.Buffer, lines [][]mapping.Segment) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(lines))); err != nil {
		return err
	}
	for _, segs := range lines {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(segs))); err != nil {
			return err
		}
		for _, s := range segs {
			f := segmentFields{
				GeneratedColumn: int32(s.GeneratedColumn),
				Source:          int32(s.Source),
				OriginalLine:    int32(s.OriginalLine),
				OriginalColumn:  int32(s.OriginalColumn),
				Name:            int32(s.Name),
			}
			if err := binary.Write(w, binary.LittleEndian, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func readLines(r *bytes.Reader) ([][]mapping.Segment, error) {
	var lineCount uint32
	if err := binary.Read(r, binary.LittleEndian, &lineCount); err != nil {
		return nil, errs.E(errs.Incompatible, "snapshot: truncated line count")
	}
	lines := make([][]mapping.Segment, lineCount)
	for i := uint32(0); i < lineCount; i++ {
		var segCount uint32
		if err := binary.Read(r, binary.LittleEndian, &segCount); err != nil {
			return nil, errs.E(errs.Incompatible, "snapshot: truncated segment count")
		}
		if segCount == 0 {
			continue
		}
		segs := make([]mapping.Segment, segCount)
		for j := uint32(0); j < segCount; j++ {
			var f segmentFields
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, errs.E(errs.Incompatible, "snapshot: truncated segment")
			}
			segs[j] = mapping.Segment{
				GeneratedLine:   int(i),
				GeneratedColumn: int(f.GeneratedColumn),
				Source:          int(f.Source),
				OriginalLine:    int(f.OriginalLine),
				OriginalColumn:  int(f.OriginalColumn),
				Name:            int(f.Name),
			}
		}
		lines[i] = segs
	}
	return lines, nil
}
