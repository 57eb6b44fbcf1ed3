// Package intern implements the two string-dedup tables the engine keeps:
// one for source paths, one for symbol names. Both use the same shape — a
// map for lookup plus a parallel slice for id-to-string access — grounded
// in the map+slice dedup idiom common to symbol tables.
package intern

// Table deduplicates strings into dense, stable integer ids in insertion
// order. The zero value is an empty table.
type Table struct {
	ids     map[string]int32
	strings []string
}

// New returns an empty Table.
func New() *Table {
	return &Table{ids: make(map[string]int32)}
}

// Intern returns s's id, assigning the next sequential id and appending s
// if it has not been seen before.
func (t *Table) Intern(s string) int32 {
	if t.ids == nil {
		t.ids = make(map[string]int32)
	}
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := int32(len(t.strings))
	t.ids[s] = id
	t.strings = append(t.strings, s)
	return id
}

// Lookup returns s's id without interning it, and whether it was found.
func (t *Table) Lookup(s string) (int32, bool) {
	id, ok := t.ids[s]
	return id, ok
}

// At returns the string for id, or "" and false if id is out of range.
func (t *Table) At(id int32) (string, bool) {
	if id < 0 || int(id) >= len(t.strings) {
		return "", false
	}
	return t.strings[id], true
}

// Len returns the number of interned strings.
func (t *Table) Len() int {
	return len(t.strings)
}

// Strings returns the interned strings in id order. The caller must not
// mutate the result.
func (t *Table) Strings() []string {
	return t.strings
}

// Reset empties the table.
func (t *Table) Reset() {
	t.ids = make(map[string]int32)
	t.strings = nil
}

// Close releases the table's contents. It always succeeds; it exists so
// callers tearing down several owned resources can treat a Table like any
// other closer.
func (t *Table) Close() error {
	t.Reset()
	return nil
}

// Contents is a parallel table of per-source content strings, resized
// lazily so Contents[i] is always defined once source i exists.
type Contents struct {
	data []string
}

// Set records content for the source at id, growing the backing slice if
// needed. Idempotent: calling it again for the same id overwrites.
func (c *Contents) Set(id int32, content string) {
	for int32(len(c.data)) <= id {
		c.data = append(c.data, "")
	}
	c.data[id] = content
}

// Get returns the content recorded for id, or "" if none was set.
func (c *Contents) Get(id int32) string {
	if id < 0 || int(id) >= len(c.data) {
		return ""
	}
	return c.data[id]
}

// All returns the content slice in source-id order. The caller must not
// mutate the result.
func (c *Contents) All() []string {
	return c.data
}

// Missing returns the ids among sources (0..n-1) whose content is still
// empty.
func (c *Contents) Missing(n int32) []int32 {
	var missing []int32
	for i := int32(0); i < n; i++ {
		if c.Get(i) == "" {
			missing = append(missing, i)
		}
	}
	return missing
}
