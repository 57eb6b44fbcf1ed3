// Package vlq implements the base64-VLQ digit codec and segment-group
// framing used by the Source Map v3 "mappings" string: comma-separated
// segments within a generated line, semicolon-separated lines, each segment
// a run of 1, 4, or 5 delta-encoded signed integers.
package vlq

import (
	"strings"

	"github.com/parcel-bundler/fast-source-map/errs"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	shift        = 5
	base         = 1 << shift
	baseMask     = base - 1
	signBit      = 1
	continuation = base
)

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

func toZigzag(n int) uint {
	if n < 0 {
		return uint(-n)<<1 | 1
	}
	return uint(n) << 1
}

func fromZigzag(n uint) int {
	v := int(n >> 1)
	if n&signBit != 0 {
		return -v
	}
	return v
}

// appendDigit writes the base64-VLQ encoding of n onto dst and returns the
// extended slice.
func appendDigit(dst []byte, n int) []byte {
	u := toZigzag(n)
	for {
		digit := u & baseMask
		u >>= shift
		if u > 0 {
			digit |= continuation
		}
		dst = append(dst, alphabet[digit])
		if u == 0 {
			return dst
		}
	}
}

// decodeDigit reads one base64-VLQ value from s starting at pos and returns
// the decoded signed integer and the position just past it.
func decodeDigit(s string, pos int) (int, int, error) {
	var u uint
	var shiftAmt uint
	start := pos
	for {
		if pos >= len(s) {
			return 0, pos, errs.E(errs.Malformed, "unterminated vlq digit at offset %d", start)
		}
		c := s[pos]
		d := decodeTable[c]
		if d < 0 {
			return 0, pos, errs.E(errs.Malformed, "invalid base64 digit %q at offset %d", c, pos)
		}
		pos++
		u |= uint(d&baseMask) << shiftAmt
		if d&continuation == 0 {
			break
		}
		shiftAmt += shift
	}
	return fromZigzag(u), pos, nil
}

// Field is one parsed segment, in the 1/4/5-integer forms the framing
// allows. Source, OriginalLine, OriginalColumn, and Name use the -1 sentinel
// for "absent" exactly as the Source Map v3 segment length dictates: length
// 1 leaves all four at -1, length 4 leaves Name at -1.
type Field struct {
	GeneratedColumn int
	Source          int
	OriginalLine    int
	OriginalColumn  int
	Name            int
}

func isSeparator(b byte) bool {
	return b == ',' || b == ';'
}

// DecodeMappings parses a Source Map v3 "mappings" string into one []Field
// per generated line. The returned slice has one entry per line up to the
// highest line referenced by a semicolon; lines with no segments are nil.
// All deltas are resolved to absolute values; source/original/name running
// state persists across lines, generatedColumn resets to 0 at each line. No
// bias or offset is applied here — that is the caller's job.
func DecodeMappings(s string) ([][]Field, error) {
	var lines [][]Field
	line := 0
	var genCol, source, origLine, origCol, name int
	lines = append(lines, nil)

	pos := 0
	for pos < len(s) {
		switch s[pos] {
		case ';':
			pos++
			line++
			genCol = 0
			lines = append(lines, nil)
			continue
		case ',':
			pos++
			continue
		}

		start := pos
		var vals [5]int
		n := 0
		for {
			v, next, err := decodeDigit(s, pos)
			if err != nil {
				return nil, err
			}
			if n >= 5 {
				return nil, errs.E(errs.Malformed, "segment at offset %d has more than 5 fields", start)
			}
			vals[n] = v
			n++
			pos = next
			if pos >= len(s) || isSeparator(s[pos]) {
				break
			}
		}

		var f Field
		switch n {
		case 1:
			genCol += vals[0]
			f = Field{GeneratedColumn: genCol, Source: -1, OriginalLine: -1, OriginalColumn: -1, Name: -1}
		case 4:
			genCol += vals[0]
			source += vals[1]
			origLine += vals[2]
			origCol += vals[3]
			if source < 0 || origLine < 0 || origCol < 0 {
				return nil, errs.E(errs.Malformed, "negative absolute value in segment at offset %d", start)
			}
			f = Field{GeneratedColumn: genCol, Source: source, OriginalLine: origLine, OriginalColumn: origCol, Name: -1}
		case 5:
			genCol += vals[0]
			source += vals[1]
			origLine += vals[2]
			origCol += vals[3]
			name += vals[4]
			if source < 0 || origLine < 0 || origCol < 0 || name < 0 {
				return nil, errs.E(errs.Malformed, "negative absolute value in segment at offset %d", start)
			}
			f = Field{GeneratedColumn: genCol, Source: source, OriginalLine: origLine, OriginalColumn: origCol, Name: name}
		default:
			return nil, errs.E(errs.Malformed, "segment at offset %d has %d fields, want 1, 4, or 5", start, n)
		}
		if genCol < 0 {
			return nil, errs.E(errs.Malformed, "negative absolute generatedColumn in segment at offset %d", start)
		}
		lines[line] = append(lines[line], f)
	}
	return lines, nil
}

// EncodeMappings is the inverse of DecodeMappings: given one []Field per
// generated line (absolute values, columns non-decreasing within a line),
// it renders the Source Map v3 "mappings" string. One ';' is written between
// consecutive entries of lines, so trailing empty entries come out as
// trailing semicolons; callers control them through the length of lines.
func EncodeMappings(lines [][]Field) string {
	var b strings.Builder
	var prevSource, prevOrigLine, prevOrigCol, prevName int
	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		prevCol := 0
		for j, f := range segs {
			if j > 0 {
				b.WriteByte(',')
			}
			var buf [32]byte
			dst := buf[:0]
			dst = appendDigit(dst, f.GeneratedColumn-prevCol)
			prevCol = f.GeneratedColumn
			if f.Source != -1 {
				dst = appendDigit(dst, f.Source-prevSource)
				dst = appendDigit(dst, f.OriginalLine-prevOrigLine)
				dst = appendDigit(dst, f.OriginalColumn-prevOrigCol)
				prevSource = f.Source
				prevOrigLine = f.OriginalLine
				prevOrigCol = f.OriginalColumn
				if f.Name != -1 {
					dst = appendDigit(dst, f.Name-prevName)
					prevName = f.Name
				}
			}
			b.Write(dst)
		}
	}
	return b.String()
}
