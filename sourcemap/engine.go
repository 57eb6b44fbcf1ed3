// Package sourcemap is the public façade over the mapping table, the
// string interners, the VLQ codec, and the binary snapshot codec: an
// in-memory engine that accumulates Source Map v3 mappings from whatever
// mix of VLQ strings, structured entries, and donor buffers a bundler
// produces, and renders them back out as a VLQ string or a binary blob.
package sourcemap

import (
	"fmt"

	"github.com/kr/text"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/parcel-bundler/fast-source-map/errs"
	"github.com/parcel-bundler/fast-source-map/intern"
	"github.com/parcel-bundler/fast-source-map/mapping"
	"github.com/parcel-bundler/fast-source-map/snapshot"
	"github.com/parcel-bundler/fast-source-map/vlq"
)

// rawMappings is the engine's short-circuit for a single AddVLQMappings
// call that lands on an otherwise-untouched engine: the string is kept
// verbatim so ToVLQ can hand it straight back without a decode/encode
// round trip, and the table is only populated (materialize) once some
// other operation actually needs to inspect it.
type rawMappings struct {
	mappings    string
	sourcesBias int
	namesBias   int
}

// Engine accumulates Source Map v3 mappings in memory. The zero value is
// not usable; construct one with Create.
type Engine struct {
	id  ksuid.KSUID
	log *zap.Logger

	cacheSize int
	sources   *intern.Table
	contents  intern.Contents
	names     *intern.Table
	table     *mapping.Table
	raw       *rawMappings

	destroyed bool
}

// Create returns a new, empty Engine.
func Create(opts ...Option) *Engine {
	e := &Engine{
		id:        ksuid.New(),
		log:       zap.NewNop(),
		cacheSize: mapping.DefaultClosestCacheSize,
		sources:   intern.New(),
		names:     intern.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.table = mapping.New(e.cacheSize)
	e.log = e.log.With(zap.String("engine", e.id.String()))
	return e
}

func (e *Engine) checkAlive() error {
	if e.destroyed {
		return errs.E(errs.Destroyed, "engine has been destroyed")
	}
	return nil
}

// Destroy releases the engine's resources. Using it afterward returns a
// Destroyed error from every method.
func (e *Engine) Destroy() error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	var errOut error
	errOut = multierr.Append(errOut, e.table.Close())
	errOut = multierr.Append(errOut, e.sources.Close())
	errOut = multierr.Append(errOut, e.names.Close())
	e.destroyed = true
	e.raw = nil
	return errOut
}

// materialize flushes a pending raw-mappings cache into the table, if one
// is set, so that any operation needing the table's actual contents sees
// them. It is a no-op when there is nothing cached.
func (e *Engine) materialize() error {
	if e.raw == nil {
		return nil
	}
	raw := e.raw
	e.raw = nil
	return e.decodeAndAppend(raw.mappings, raw.sourcesBias, raw.namesBias, 0, 0)
}

func (e *Engine) decodeAndAppend(s string, sourcesBias, namesBias, lineOffset, columnOffset int) error {
	fieldLines, err := vlq.DecodeMappings(s)
	if err != nil {
		return err
	}
	segLines := make([][]mapping.Segment, len(fieldLines))
	for i, fields := range fieldLines {
		if len(fields) == 0 {
			continue
		}
		segs := make([]mapping.Segment, len(fields))
		for j, f := range fields {
			seg := mapping.Segment{
				GeneratedColumn: f.GeneratedColumn,
				Source:          -1,
				OriginalLine:    -1,
				OriginalColumn:  -1,
				Name:            -1,
			}
			if f.Source != -1 {
				seg.Source = f.Source + sourcesBias
				seg.OriginalLine = f.OriginalLine
				seg.OriginalColumn = f.OriginalColumn
				if f.Name != -1 {
					seg.Name = f.Name + namesBias
				}
			}
			segs[j] = seg
		}
		segLines[i] = segs
	}
	e.table.AppendOffset(segLines, lineOffset, columnOffset)
	return nil
}

func (e *Engine) internSourcesWithContent(sources, contents []string) {
	for i, src := range sources {
		id := e.sources.Intern(src)
		if i < len(contents) && contents[i] != "" {
			e.contents.Set(id, contents[i])
		}
	}
}

func (e *Engine) internNames(names []string) {
	for _, n := range names {
		e.names.Intern(n)
	}
}

// AddVLQMappings decodes a Source Map v3 "mappings" string, interning
// sources/sourcesContent/names and appending the decoded segments shifted
// by lineOffset/columnOffset. If the engine is otherwise empty and both
// offsets are zero, the string is cached verbatim instead of being parsed
// immediately, so a pure decode/re-encode round trip (ToVLQ with no other
// calls in between) costs nothing.
func (e *Engine) AddVLQMappings(mappings string, sources, sourcesContent, names []string, lineOffset, columnOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	sourcesBias := e.sources.Len()
	namesBias := e.names.Len()
	useCache := e.table.Len() == 0 && sourcesBias == 0 && namesBias == 0 && lineOffset == 0 && columnOffset == 0

	e.internSourcesWithContent(sources, sourcesContent)
	e.internNames(names)

	if useCache {
		e.log.Debug("caching raw mappings", zap.Int("length", len(mappings)))
		e.raw = &rawMappings{mappings: mappings}
		return nil
	}
	e.log.Debug("decoding mappings", zap.Int("lineOffset", lineOffset), zap.Int("columnOffset", columnOffset))
	return e.decodeAndAppend(mappings, sourcesBias, namesBias, lineOffset, columnOffset)
}

func (e *Engine) buildSegment(m IndexedMapping) (mapping.Segment, error) {
	if m.Generated.Line < 1 {
		return mapping.Segment{}, errs.E(errs.Other, "generated line must be >= 1, got %d", m.Generated.Line)
	}
	seg := mapping.Segment{
		GeneratedLine:   m.Generated.Line - 1,
		GeneratedColumn: m.Generated.Column,
		Source:          -1,
		OriginalLine:    -1,
		OriginalColumn:  -1,
		Name:            -1,
	}
	if m.Original == nil {
		if m.Source != "" || m.Name != "" {
			return mapping.Segment{}, errs.E(errs.Other, "source/name given without an original position")
		}
		return seg, nil
	}
	if m.Source == "" {
		return mapping.Segment{}, errs.E(errs.Other, "original position given without a source")
	}
	if m.Original.Line < 1 {
		return mapping.Segment{}, errs.E(errs.Other, "original line must be >= 1, got %d", m.Original.Line)
	}
	seg.Source = int(e.sources.Intern(m.Source))
	seg.OriginalLine = m.Original.Line - 1
	seg.OriginalColumn = m.Original.Column
	if m.Name != "" {
		seg.Name = int(e.names.Intern(m.Name))
	}
	return seg, nil
}

// AddIndexedMapping appends a single structured mapping, shifted by
// lineOffset/columnOffset exactly as AddVLQMappings would shift a
// one-segment decoded line.
func (e *Engine) AddIndexedMapping(m IndexedMapping, lineOffset, columnOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	seg, err := e.buildSegment(m)
	if err != nil {
		return err
	}
	donorLine := seg.GeneratedLine
	seg.GeneratedLine = 0
	donorLines := make([][]mapping.Segment, donorLine+1)
	donorLines[donorLine] = []mapping.Segment{seg}
	e.table.AppendOffset(donorLines, lineOffset, columnOffset)
	return nil
}

// AddIndexedMappings appends a batch of structured mappings. Validation
// runs over the whole batch before anything is committed: if any entry is
// malformed, the combined error describing every failure is returned and
// none of the batch is applied.
func (e *Engine) AddIndexedMappings(ms []IndexedMapping, lineOffset, columnOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	// Validate against scratch intern tables first, so a rejected batch
	// leaves this engine's sources and names untouched.
	scratch := &Engine{sources: intern.New(), names: intern.New()}
	var combined error
	for i, m := range ms {
		if _, err := scratch.buildSegment(m); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("mapping %d: %w", i, err))
		}
	}
	if combined != nil {
		return combined
	}
	segs := make([]mapping.Segment, len(ms))
	for i, m := range ms {
		segs[i], _ = e.buildSegment(m)
	}
	maxLine := 0
	for _, s := range segs {
		if s.GeneratedLine > maxLine {
			maxLine = s.GeneratedLine
		}
	}
	donorLines := make([][]mapping.Segment, maxLine+1)
	for _, s := range segs {
		line := s.GeneratedLine
		s.GeneratedLine = 0
		donorLines[line] = append(donorLines[line], s)
	}
	e.table.AppendOffset(donorLines, lineOffset, columnOffset)
	return nil
}

// AddBufferMappings decodes a snapshot blob produced by ToBuffer and merges
// its sources, contents, names, and segments into this engine, biasing ids
// and shifting generated positions exactly as AddVLQMappings does for a
// decoded VLQ string.
func (e *Engine) AddBufferMappings(blob []byte, lineOffset, columnOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	p, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	sourcesBias := e.sources.Len()
	namesBias := e.names.Len()
	e.internSourcesWithContent(p.Sources, p.Contents)
	e.internNames(p.Names)

	biased := make([][]mapping.Segment, len(p.Lines))
	for i, segs := range p.Lines {
		if len(segs) == 0 {
			continue
		}
		out := make([]mapping.Segment, len(segs))
		for j, s := range segs {
			out[j] = s
			out[j].GeneratedLine = 0
			if s.Source != -1 {
				out[j].Source = s.Source + sourcesBias
				if s.Name != -1 {
					out[j].Name = s.Name + namesBias
				}
			}
		}
		biased[i] = out
	}
	e.table.AppendOffset(biased, lineOffset, columnOffset)
	return nil
}

// AddEmptyMap seeds the engine with an identity mapping for a single
// source: every line of content, from generated line lineOffset+1 onward,
// maps 1:1 to the same line of the original.
func (e *Engine) AddEmptyMap(source, content string, lineOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	id := e.sources.Intern(source)
	if content != "" {
		e.contents.Set(id, content)
	}
	lineCount := 1
	for _, c := range content {
		if c == '\n' {
			lineCount++
		}
	}
	donorLines := make([][]mapping.Segment, lineCount)
	for i := 0; i < lineCount; i++ {
		donorLines[i] = []mapping.Segment{{
			GeneratedColumn: 0,
			Source:          int(id),
			OriginalLine:    i,
			OriginalColumn:  0,
			Name:            -1,
		}}
	}
	e.table.AppendOffset(donorLines, lineOffset, 0)
	return nil
}

// AddSource interns a source path, returning its id.
func (e *Engine) AddSource(source string) (int, error) {
	if err := e.checkAlive(); err != nil {
		return 0, err
	}
	return int(e.sources.Intern(source)), nil
}

// AddSources interns a batch of source paths, returning their ids in order.
func (e *Engine) AddSources(sources []string) ([]int, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}
	ids := make([]int, len(sources))
	for i, s := range sources {
		ids[i] = int(e.sources.Intern(s))
	}
	return ids, nil
}

// AddName interns a symbol name, returning its id.
func (e *Engine) AddName(name string) (int, error) {
	if err := e.checkAlive(); err != nil {
		return 0, err
	}
	return int(e.names.Intern(name)), nil
}

// AddNames interns a batch of symbol names, returning their ids in order.
func (e *Engine) AddNames(names []string) ([]int, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}
	ids := make([]int, len(names))
	for i, n := range names {
		ids[i] = int(e.names.Intern(n))
	}
	return ids, nil
}

// SetSourceContent records the original-source text for an already-interned
// source id.
func (e *Engine) SetSourceContent(id int, content string) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if id < 0 || id >= e.sources.Len() {
		return errs.E(errs.OutOfBounds, "source id %d out of range", id)
	}
	e.contents.Set(int32(id), content)
	return nil
}

// GetSource resolves a source id to its path.
func (e *Engine) GetSource(id int) (string, error) {
	if err := e.checkAlive(); err != nil {
		return "", err
	}
	s, ok := e.sources.At(int32(id))
	if !ok {
		return "", errs.E(errs.OutOfBounds, "source id %d out of range", id)
	}
	return s, nil
}

// GetName resolves a name id to its string.
func (e *Engine) GetName(id int) (string, error) {
	if err := e.checkAlive(); err != nil {
		return "", err
	}
	n, ok := e.names.At(int32(id))
	if !ok {
		return "", errs.E(errs.OutOfBounds, "name id %d out of range", id)
	}
	return n, nil
}

// GetSourceContent returns the content recorded for a source id, or "" if
// none was set.
func (e *Engine) GetSourceContent(id int) (string, error) {
	if err := e.checkAlive(); err != nil {
		return "", err
	}
	if id < 0 || id >= e.sources.Len() {
		return "", errs.E(errs.OutOfBounds, "source id %d out of range", id)
	}
	return e.contents.Get(int32(id)), nil
}

// MissingSourceContents returns the ids of interned sources that have no
// recorded content.
func (e *Engine) MissingSourceContents() ([]int, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}
	missing := e.contents.Missing(int32(e.sources.Len()))
	out := make([]int, len(missing))
	for i, id := range missing {
		out[i] = int(id)
	}
	return out, nil
}

func (e *Engine) resolve(seg mapping.Segment) ResolvedMapping {
	r := ResolvedMapping{Generated: Position{Line: seg.GeneratedLine + 1, Column: seg.GeneratedColumn}}
	if !seg.HasOriginal() {
		return r
	}
	r.HasOriginal = true
	if src, ok := e.sources.At(int32(seg.Source)); ok {
		r.Source = src
	}
	r.Original = Position{Line: seg.OriginalLine + 1, Column: seg.OriginalColumn}
	if seg.HasName() {
		r.HasName = true
		if n, ok := e.names.At(int32(seg.Name)); ok {
			r.Name = n
		}
	}
	return r
}

// FindClosestMapping returns the mapping at the greatest generated position
// less than or equal to (line, column), resolved to source/name strings.
func (e *Engine) FindClosestMapping(line, column int) (ResolvedMapping, bool, error) {
	if err := e.checkAlive(); err != nil {
		return ResolvedMapping{}, false, err
	}
	if err := e.materialize(); err != nil {
		return ResolvedMapping{}, false, err
	}
	seg, ok := e.table.FindClosest(line-1, column)
	if !ok {
		return ResolvedMapping{}, false, nil
	}
	return e.resolve(seg), true, nil
}

// AllMappings returns every segment currently in the table, in id form and
// document order, for instrumentation or bulk export.
func (e *Engine) AllMappings() ([]Segment, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}
	if err := e.materialize(); err != nil {
		return nil, err
	}
	return e.table.All(), nil
}

// OffsetLines shifts every segment on or after line by lineOffset. A
// negative shift drops the segments already on the -lineOffset lines just
// before line, which the shifted block moves over.
func (e *Engine) OffsetLines(line, lineOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	return e.table.OffsetLines(line-1, lineOffset)
}

// OffsetColumns shifts every segment on line at or after column by
// columnOffset.
func (e *Engine) OffsetColumns(line, column, columnOffset int) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	return e.table.OffsetColumns(line-1, column, columnOffset)
}

// ToVLQ renders the engine's current state as a Source Map v3 mappings
// string plus its sources/sourcesContent/names arrays. If a raw mappings
// string is still cached and nothing else has touched the table, it is
// returned verbatim instead of being re-encoded.
func (e *Engine) ToVLQ() (VLQResult, error) {
	if err := e.checkAlive(); err != nil {
		return VLQResult{}, err
	}
	result := VLQResult{
		Sources:        e.sources.Strings(),
		SourcesContent: e.sourcesContent(),
		Names:          e.names.Strings(),
	}
	if e.raw != nil {
		result.Mappings = e.raw.mappings
		return result, nil
	}
	fieldLines := make([][]vlq.Field, e.table.Len())
	for i := 0; i < e.table.Len(); i++ {
		segs := e.table.Line(i)
		if len(segs) == 0 {
			continue
		}
		fields := make([]vlq.Field, len(segs))
		for j, s := range segs {
			fields[j] = vlq.Field{
				GeneratedColumn: s.GeneratedColumn,
				Source:          s.Source,
				OriginalLine:    s.OriginalLine,
				OriginalColumn:  s.OriginalColumn,
				Name:            s.Name,
			}
		}
		fieldLines[i] = fields
	}
	result.Mappings = vlq.EncodeMappings(fieldLines)
	return result, nil
}

// ToBuffer serializes the engine's full state — sources, contents, names,
// and segments — into a binary snapshot blob.
func (e *Engine) ToBuffer() ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}
	if err := e.materialize(); err != nil {
		return nil, err
	}
	lines := make([][]mapping.Segment, e.table.Len())
	for i := 0; i < e.table.Len(); i++ {
		lines[i] = e.table.Line(i)
	}
	return snapshot.Encode(e.sources.Strings(), e.sourcesContent(), e.names.Strings(), lines)
}

// sourcesContent returns the per-source content table padded with "" so it
// has exactly one entry per interned source, even for sources that never
// had SetSourceContent/content called on them.
func (e *Engine) sourcesContent() []string {
	all := e.contents.All()
	n := e.sources.Len()
	if len(all) >= n {
		return all[:n]
	}
	out := make([]string, n)
	copy(out, all)
	return out
}

// FromBuffer decodes a snapshot blob produced by ToBuffer into a new,
// independent Engine.
func FromBuffer(blob []byte, opts ...Option) (*Engine, error) {
	p, err := snapshot.Decode(blob)
	if err != nil {
		return nil, err
	}
	e := Create(opts...)
	e.internSourcesWithContent(p.Sources, p.Contents)
	e.internNames(p.Names)
	e.table.AppendOffset(p.Lines, 0, 0)
	return e, nil
}

// Extends re-anchors this engine's mappings through donor: for every
// segment of this engine that has an original position, that position is
// looked up as a generated position in donor, and replaced with whatever
// donor maps it to. Segments whose original position donor has no mapping
// for are left untouched.
func (e *Engine) Extends(donor *Engine) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := donor.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	if err := donor.materialize(); err != nil {
		return err
	}
	e.log.Debug("extending through donor", zap.String("donor", donor.id.String()))
	return e.extendThrough(donor.table, func(id int) (string, bool) {
		return donor.sources.At(int32(id))
	}, func(id int) (string, bool) {
		return donor.names.At(int32(id))
	})
}

// ExtendsBuffer is Extends against a donor engine encoded as a snapshot
// blob, without constructing a standalone donor Engine.
func (e *Engine) ExtendsBuffer(blob []byte) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	if err := e.materialize(); err != nil {
		return err
	}
	p, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	donorTable := mapping.New(0)
	donorTable.AppendOffset(p.Lines, 0, 0)
	return e.extendThrough(donorTable, func(id int) (string, bool) {
		if id < 0 || id >= len(p.Sources) {
			return "", false
		}
		return p.Sources[id], true
	}, func(id int) (string, bool) {
		if id < 0 || id >= len(p.Names) {
			return "", false
		}
		return p.Names[id], true
	})
}

// extendThrough rewrites every original-side position this engine holds by
// looking it up as a generated position in donorTable, re-interning
// whatever source/name strings donorSource/donorName resolve the donor's
// ids to into this engine's own tables.
func (e *Engine) extendThrough(donorTable *mapping.Table, donorSource, donorName func(int) (string, bool)) error {
	rewritten := make([][]mapping.Segment, e.table.Len())
	for i := 0; i < e.table.Len(); i++ {
		segs := e.table.Line(i)
		if len(segs) == 0 {
			continue
		}
		out := make([]mapping.Segment, len(segs))
		for j, s := range segs {
			out[j] = s
			if !s.HasOriginal() {
				continue
			}
			donorSeg, ok := donorTable.FindClosest(s.OriginalLine, s.OriginalColumn)
			if !ok || !donorSeg.HasOriginal() {
				e.log.Warn("extends: no donor mapping for original position",
					zap.Int("originalLine", s.OriginalLine+1),
					zap.Int("originalColumn", s.OriginalColumn))
				continue
			}
			srcStr, ok := donorSource(donorSeg.Source)
			if !ok {
				e.log.Warn("extends: donor source id unresolved", zap.Int("sourceId", donorSeg.Source))
				continue
			}
			out[j].Source = int(e.sources.Intern(srcStr))
			out[j].OriginalLine = donorSeg.OriginalLine
			out[j].OriginalColumn = donorSeg.OriginalColumn
			if donorSeg.HasName() {
				if nameStr, ok := donorName(donorSeg.Name); ok {
					out[j].Name = int(e.names.Intern(nameStr))
				}
			}
		}
		rewritten[i] = out
	}
	e.table.Reset()
	e.table.AppendOffset(rewritten, 0, 0)
	return nil
}

// Dump renders the engine's mapping table as an indented, human-readable
// listing for debugging.
func (e *Engine) Dump() (string, error) {
	if err := e.checkAlive(); err != nil {
		return "", err
	}
	if err := e.materialize(); err != nil {
		return "", err
	}
	var b []byte
	for i := 0; i < e.table.Len(); i++ {
		segs := e.table.Line(i)
		if len(segs) == 0 {
			continue
		}
		b = append(b, []byte(fmt.Sprintf("line %d:\n", i+1))...)
		for _, s := range segs {
			b = append(b, []byte(text.Indent(fmt.Sprintf("%+v\n", s), "  "))...)
		}
	}
	return string(b), nil
}
