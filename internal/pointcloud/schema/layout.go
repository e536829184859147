package schema

import (
	"fmt"
	"io"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
)

// Field is one attribute of a point record. Offset and index are -1
// until the field is added to a Layout.
type Field struct {
	item   DataItem
	kind   ValueKind
	width  int
	offset int
	index  int
}

// NewField returns an unplaced field of the given item and kind.
func NewField(item DataItem, kind ValueKind) Field {
	return Field{item: item, kind: kind, width: kind.Width(), offset: -1, index: -1}
}

func (f Field) Item() DataItem  { return f.item }
func (f Field) Kind() ValueKind { return f.kind }
func (f Field) Width() int      { return f.width }
func (f Field) Offset() int     { return f.offset }
func (f Field) Index() int      { return f.index }

func (f Field) String() string {
	return fmt.Sprintf("%s(%s) offset=%d width=%d index=%d", f.item, f.kind, f.offset, f.width, f.index)
}

// Layout is the ordered field set of a point record.
//
// A Layout grows only while a pipeline is being prepared. The first
// point buffer allocated against it freezes it; after that AddField and
// SetActive fail so computed offsets never go stale.
type Layout struct {
	fields   []Field
	active   []bool
	byItem   map[DataItem]int
	numBytes int
	frozen   bool

	xIndex, yIndex, zIndex int
}

// NewLayout returns a layout holding fields in order. Duplicate items
// are ignored.
func NewLayout(fields ...Field) *Layout {
	l := &Layout{
		byItem: make(map[DataItem]int),
		xIndex: -1,
		yIndex: -1,
		zIndex: -1,
	}
	// A fresh layout is never frozen, so AddFields cannot fail here.
	_ = l.AddFields(fields...)
	return l
}

// AddField appends f if its DataItem is not yet present and returns the
// field index. Re-adding an existing item is a no-op that returns the
// existing index.
func (l *Layout) AddField(f Field) (int, error) {
	if idx, ok := l.byItem[f.item]; ok {
		return idx, nil
	}
	if l.frozen {
		return -1, pointcloud.Errorf(pointcloud.KindSchema, "layout.add_field",
			"layout is frozen, cannot add %s", f.item)
	}
	if f.width <= 0 {
		return -1, pointcloud.Errorf(pointcloud.KindSchema, "layout.add_field",
			"field %s has invalid kind %s", f.item, f.kind)
	}

	f.offset = l.numBytes
	f.index = len(l.fields)
	l.numBytes += f.width

	l.fields = append(l.fields, f)
	l.active = append(l.active, false)
	l.byItem[f.item] = f.index

	switch f.item {
	case XPos:
		l.xIndex = f.index
	case YPos:
		l.yIndex = f.index
	case ZPos:
		l.zIndex = f.index
	}

	return f.index, nil
}

// AddFields applies AddField in order and stops at the first error.
func (l *Layout) AddFields(fields ...Field) error {
	for _, f := range fields {
		if _, err := l.AddField(f); err != nil {
			return err
		}
	}
	return nil
}

// SizeInBytes returns the width of one point record.
func (l *Layout) SizeInBytes() int { return l.numBytes }

// NumFields returns the number of fields.
func (l *Layout) NumFields() int { return len(l.fields) }

// Field returns the field at index i. It panics if i is out of range.
func (l *Layout) Field(i int) Field { return l.fields[i] }

// Fields returns a copy of the field sequence.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// FindFieldIndex returns the index of item, or -1.
func (l *Layout) FindFieldIndex(item DataItem) int {
	if idx, ok := l.byItem[item]; ok {
		return idx
	}
	return -1
}

// HasField reports whether item is part of the layout.
func (l *Layout) HasField(item DataItem) bool {
	_, ok := l.byItem[item]
	return ok
}

// FindFieldOffset returns the byte offset of item, or -1.
func (l *Layout) FindFieldOffset(item DataItem) int {
	idx := l.FindFieldIndex(item)
	if idx == -1 {
		return -1
	}
	return l.fields[idx].offset
}

// FindFieldByName resolves a semantic name such as "Classification".
func (l *Layout) FindFieldByName(name string) (Field, bool) {
	item, err := ParseDataItem(name)
	if err != nil {
		return Field{}, false
	}
	idx := l.FindFieldIndex(item)
	if idx == -1 {
		return Field{}, false
	}
	return l.fields[idx], true
}

// XIndex returns the cached index of the X field, or -1.
func (l *Layout) XIndex() int { return l.xIndex }

// YIndex returns the cached index of the Y field, or -1.
func (l *Layout) YIndex() int { return l.yIndex }

// ZIndex returns the cached index of the Z field, or -1.
func (l *Layout) ZIndex() int { return l.zIndex }

// IsActive reports the active flag of field i.
func (l *Layout) IsActive(i int) bool { return l.active[i] }

// SetActive sets the active flag of field i.
func (l *Layout) SetActive(i int, v bool) error {
	if i < 0 || i >= len(l.active) {
		return pointcloud.Errorf(pointcloud.KindSchema, "layout.set_active",
			"field index %d out of range [0,%d)", i, len(l.active))
	}
	if l.frozen {
		return pointcloud.Errorf(pointcloud.KindSchema, "layout.set_active",
			"layout is frozen, cannot change %s", l.fields[i].item)
	}
	l.active[i] = v
	return nil
}

// Freeze stops further growth. It is called when the first point buffer
// is allocated against the layout.
func (l *Layout) Freeze() { l.frozen = true }

// Frozen reports whether the layout has been frozen.
func (l *Layout) Frozen() bool { return l.frozen }

// Same reports whether both layouts describe identical records: equal
// total width and field sequences, and, unless ignoreActive, identical
// active flags. Only Same layouts may use the fast record copy.
func (l *Layout) Same(other *Layout, ignoreActive bool) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil {
		return false
	}
	if l.numBytes != other.numBytes || len(l.fields) != len(other.fields) {
		return false
	}
	if !ignoreActive {
		for i := range l.active {
			if l.active[i] != other.active[i] {
				return false
			}
		}
	}
	for i := range l.fields {
		if l.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// Equal is Same with active flags compared.
func (l *Layout) Equal(other *Layout) bool { return l.Same(other, false) }

// Clone returns an unfrozen copy of the layout.
func (l *Layout) Clone() *Layout {
	c := &Layout{
		fields:   l.Fields(),
		active:   append([]bool(nil), l.active...),
		byItem:   make(map[DataItem]int, len(l.byItem)),
		numBytes: l.numBytes,
		xIndex:   l.xIndex,
		yIndex:   l.yIndex,
		zIndex:   l.zIndex,
	}
	for k, v := range l.byItem {
		c.byItem[k] = v
	}
	return c
}

// Dump writes one line per field.
func (l *Layout) Dump(w io.Writer) {
	fmt.Fprintf(w, "Layout: %d fields, %d bytes\n", len(l.fields), l.numBytes)
	for i, f := range l.fields {
		suffix := ""
		if !l.active[i] {
			suffix = " (inactive)"
		}
		fmt.Fprintf(w, "  %s%s\n", f, suffix)
	}
}
