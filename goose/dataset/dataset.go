package dataset

import (
	"fmt"
	"strings"
)

// DataSet is the ordered, fixed-arity payload of a GOOSE message. Position is
// the addressing key; the slice is never resized after construction.
type DataSet struct {
	elements []DataElement
}

// New returns a data set of n empty entries, to be filled by Decode.
func New(n int) *DataSet {
	return &DataSet{elements: make([]DataElement, n)}
}

// FromElements builds a data set holding copies of elems in order.
func FromElements(elems ...DataElement) *DataSet {
	d := &DataSet{elements: make([]DataElement, len(elems))}
	copy(d.elements, elems)
	return d
}

// Len returns the number of entries.
func (d *DataSet) Len() int {
	return len(d.elements)
}

// Element returns a pointer to entry i, or nil when i is out of range.
func (d *DataSet) Element(i int) *DataElement {
	if i < 0 || i >= len(d.elements) {
		return nil
	}
	return &d.elements[i]
}

// Elements returns a copy of all entries.
func (d *DataSet) Elements() []DataElement {
	out := make([]DataElement, len(d.elements))
	copy(out, d.elements)
	return out
}

// Clone returns a deep copy.
func (d *DataSet) Clone() *DataSet {
	return FromElements(d.elements...)
}

// Size returns the encoded size of all entries (the allData content length).
func (d *DataSet) Size() int {
	total := 0
	for _, e := range d.elements {
		total += e.EncodedSize()
	}
	return total
}

// Encode writes every entry in order starting at bufPos.
func (d *DataSet) Encode(buffer []byte, bufPos int) (int, error) {
	var err error
	for i, e := range d.elements {
		bufPos, err = e.Encode(buffer, bufPos)
		if err != nil {
			return -1, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return bufPos, nil
}

// Decode replaces every entry with one decoded from buffer. Exactly Len()
// elements are read; bytes after the last one are left alone.
func (d *DataSet) Decode(buffer []byte, bufPos, maxBufPos int) (int, error) {
	var err error
	for i := range d.elements {
		var e DataElement
		e, bufPos, err = DecodeElement(buffer, bufPos, maxBufPos)
		if err != nil {
			return -1, fmt.Errorf("entry %d: %w", i, err)
		}
		d.elements[i] = e
	}
	return bufPos, nil
}

// Decode reads a data set of numEntries elements.
func Decode(buffer []byte, bufPos, maxBufPos, numEntries int) (*DataSet, int, error) {
	d := New(numEntries)
	pos, err := d.Decode(buffer, bufPos, maxBufPos)
	if err != nil {
		return nil, -1, err
	}
	return d, pos, nil
}

func (d *DataSet) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range d.elements {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.String())
	}
	b.WriteByte(']')
	return b.String()
}
