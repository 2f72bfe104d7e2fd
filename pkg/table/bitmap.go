package table

import (
	"math/bits"
)

// Bitmap records which rows of a computed column hold a value.
// Bit = 1 means the row evaluated successfully.
type Bitmap struct {
	bits   []uint64
	length int
}

// NewBitmap creates a bitmap of length rows with every bit clear.
func NewBitmap(length int) *Bitmap {
	return &Bitmap{
		bits:   make([]uint64, (length+63)/64),
		length: length,
	}
}

// NewAllSetBitmap creates a bitmap of length rows with every bit set.
func NewAllSetBitmap(length int) *Bitmap {
	b := NewBitmap(length)
	for i := range b.bits {
		b.bits[i] = ^uint64(0)
	}
	b.trim()
	return b
}

// Len returns the number of rows covered.
func (b *Bitmap) Len() int {
	return b.length
}

// Set marks row i valid. Out-of-range rows are ignored.
func (b *Bitmap) Set(i int) {
	if w, m, ok := b.locate(i); ok {
		b.bits[w] |= m
	}
}

// Clear marks row i invalid. Out-of-range rows are ignored.
func (b *Bitmap) Clear(i int) {
	if w, m, ok := b.locate(i); ok {
		b.bits[w] &^= m
	}
}

// SetTo sets or clears row i.
func (b *Bitmap) SetTo(i int, valid bool) {
	if valid {
		b.Set(i)
	} else {
		b.Clear(i)
	}
}

// IsSet reports whether row i is valid.
func (b *Bitmap) IsSet(i int) bool {
	w, m, ok := b.locate(i)
	return ok && b.bits[w]&m != 0
}

// PopCount returns the number of valid rows.
func (b *Bitmap) PopCount() int {
	n := 0
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Invalid returns the rows whose bit is clear, in ascending order.
func (b *Bitmap) Invalid() []int {
	var rows []int
	for i := 0; i < b.length; i++ {
		if !b.IsSet(i) {
			rows = append(rows, i)
		}
	}
	return rows
}

// And returns the rows valid in both b and other.
func (b *Bitmap) And(other *Bitmap) *Bitmap {
	length := min(b.length, other.length)
	result := NewBitmap(length)
	for i := range result.bits {
		result.bits[i] = b.bits[i] & other.bits[i]
	}
	result.trim()
	return result
}

func (b *Bitmap) locate(i int) (word int, mask uint64, ok bool) {
	if i < 0 || i >= b.length {
		return 0, 0, false
	}
	return i / 64, uint64(1) << (i % 64), true
}

// trim clears the bits past length in the last word.
func (b *Bitmap) trim() {
	if r := b.length % 64; r != 0 && len(b.bits) > 0 {
		b.bits[len(b.bits)-1] &= (uint64(1) << r) - 1
	}
}
