package canxl

import (
	"errors"
	"fmt"
	"strings"
)

// RegisterWidth is width of X_CAN/XS_CAN/X_CANB registers in bits.
const RegisterWidth = 32

var (
	// ErrInvalidBitRange indicates that bit range end is before start or bits are outside 32bit register
	ErrInvalidBitRange = errors.New("invalid bit range")
)

// GetBits extracts bits endBit..startBit (both inclusive) from register value and returns them shifted to bit 0.
//
// Example: GetBits(0b11110000, 4, 3) returns 0b10
//
// endBit larger than 31 is clamped to 31. In case endBit is smaller than startBit result is 0.
func GetBits(value uint32, endBit uint8, startBit uint8) uint32 {
	if endBit > RegisterWidth-1 {
		endBit = RegisterWidth - 1
	}
	if endBit < startBit {
		return 0
	}
	width := endBit - startBit + 1
	if width == RegisterWidth {
		// shifting 1 by 32 would overflow uint32 mask calculation
		return value
	}
	return (value >> startBit) & ((uint32(1) << width) - 1)
}

// SetBits returns register value where bits endBit..startBit are replaced with given field value. Field value is
// truncated to bit range width, bits outside range are preserved.
func SetBits(value uint32, endBit uint8, startBit uint8, field uint32) uint32 {
	if endBit > RegisterWidth-1 {
		endBit = RegisterWidth - 1
	}
	if endBit < startBit {
		return value
	}
	r := BitRange{End: endBit, Start: startBit}
	return r.Insert(value, field)
}

// BitRange is contiguous range of register bits carrying one field value.
type BitRange struct {
	End   uint8 `json:"end" msgpack:"end"`
	Start uint8 `json:"start" msgpack:"start"`
}

// Width returns number of bits in range.
func (r BitRange) Width() uint8 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Mask returns mask for bit range at its position in register.
func (r BitRange) Mask() uint32 {
	w := r.Width()
	if w == 0 {
		return 0
	}
	if w >= RegisterWidth {
		return 0xFFFFFFFF
	}
	return ((uint32(1) << w) - 1) << r.Start
}

// Extract returns field value from register value.
func (r BitRange) Extract(value uint32) uint32 {
	return GetBits(value, r.End, r.Start)
}

// Insert sets field value into register value.
func (r BitRange) Insert(value uint32, field uint32) uint32 {
	mask := r.Mask()
	return (value &^ mask) | ((field << r.Start) & mask)
}

// MaxValue returns largest value that field with given range can hold.
func (r BitRange) MaxValue() uint32 {
	return r.Mask() >> r.Start
}

// Overlaps checks if ranges share at least one bit.
func (r BitRange) Overlaps(other BitRange) bool {
	return r.Mask()&other.Mask() != 0
}

// Validate checks that range is within 32bit register and end is not before start.
func (r BitRange) Validate() error {
	if r.End > RegisterWidth-1 || r.Start > RegisterWidth-1 {
		return fmt.Errorf("%w: %v is outside of %v bit register", ErrInvalidBitRange, r, RegisterWidth)
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: %v end bit is before start bit", ErrInvalidBitRange, r)
	}
	return nil
}

func (r BitRange) String() string {
	if r.End == r.Start {
		return fmt.Sprintf("[%d]", r.End)
	}
	return fmt.Sprintf("[%d:%d]", r.End, r.Start)
}

// BinaryLine returns bits2print lowest bits of register value as binary digits (most significant bit first). Digits
// are separated by single space and after every nibble (group of 4 bits) an extra space is added, except after the
// last bit.
//
// Example: BinaryLine(0xA5, 8) returns "1 0 1 0  0 1 0 1"
func BinaryLine(value uint32, bits2print int) string {
	bits2print = clampBits(bits2print)

	buf := strings.Builder{}
	buf.Grow(bits2print*2 + bits2print/4)
	for i := bits2print - 1; i >= 0; i-- {
		if value&(uint32(1)<<uint(i)) != 0 {
			buf.WriteByte('1')
		} else {
			buf.WriteByte('0')
		}
		if i == 0 {
			break
		}
		buf.WriteByte(' ')
		if i%4 == 0 {
			buf.WriteByte(' ')
		}
	}
	return buf.String()
}

// BitNumberLine returns units digit of bit indexes aligned with BinaryLine output for the same bits2print.
//
// Example: BitNumberLine(8) returns "7 6 5 4  3 2 1 0"
func BitNumberLine(bits2print int) string {
	bits2print = clampBits(bits2print)

	buf := strings.Builder{}
	for i := bits2print - 1; i >= 0; i-- {
		buf.WriteByte(byte('0' + i%10))
		if i == 0 {
			break
		}
		buf.WriteByte(' ')
		if i%4 == 0 {
			buf.WriteByte(' ')
		}
	}
	return buf.String()
}

func clampBits(bits int) int {
	if bits < 1 {
		return 1
	}
	if bits > RegisterWidth {
		return RegisterWidth
	}
	return bits
}
