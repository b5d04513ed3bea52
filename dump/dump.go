// Package dump reads and writes register dumps in plain text format.
//
// Every non-empty line holds one register value as `ADDRESS VALUE`. Address and value are hexadecimal numbers with
// or without `0x` prefix and can be separated by space, tab, comma, colon or equals sign. Instead of address a
// register name can be used when Reader has Resolver. Text after `#` is comment.
//
//	# X_CAN PRT
//	0x00000400 0x87654321
//	0464: 007E1F1F
//	DBTP = 0x201E0707
package dump

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/internal/utils"
)

var (
	ErrInvalidLine  = errors.New("invalid register dump line")
	ErrUnknownName  = errors.New("unknown register name in dump")
	ErrInvalidValue = errors.New("invalid register dump value")
)

// Resolver converts register name to its address.
type Resolver interface {
	Resolve(name string) (uint32, bool)
}

// UnmarshalLine parses single dump line. Returns false when line is empty or contains only comment.
func UnmarshalLine(line string, resolver Resolver) (canxl.RegisterValue, bool, error) {
	if idx := strings.IndexByte(line, '#'); idx != -1 {
		line = line[:idx]
	}
	parts := strings.FieldsFunc(line, isSeparator)
	if len(parts) == 0 {
		return canxl.RegisterValue{}, false, nil
	}
	if len(parts) != 2 {
		return canxl.RegisterValue{}, false, fmt.Errorf("%w: `%v`", ErrInvalidLine, utils.QuoteInput(strings.TrimSpace(line)))
	}

	address, err := parseHex(parts[0])
	if err != nil {
		if resolver == nil || !isName(parts[0]) {
			return canxl.RegisterValue{}, false, fmt.Errorf("invalid address: %w", err)
		}
		var ok bool
		if address, ok = resolver.Resolve(parts[0]); !ok {
			return canxl.RegisterValue{}, false, fmt.Errorf("%w: `%v`", ErrUnknownName, parts[0])
		}
	}
	value, err := parseHex(parts[1])
	if err != nil {
		return canxl.RegisterValue{}, false, fmt.Errorf("invalid value: %w", err)
	}
	return canxl.RegisterValue{Address: address, Value: value}, true, nil
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', ',', ':', '=', '\r':
		return true
	}
	return false
}

// isName checks if token that is not valid hex number looks like register name
func isName(s string) bool {
	c := s[0] | 0x20 // lower case
	return c >= 'a' && c <= 'z'
}

func parseHex(s string) (uint32, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw = strings.ReplaceAll(raw, "_", "")
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: `%v`", ErrInvalidValue, s)
	}
	result, err := safecast.Conv[uint32](v)
	if err != nil {
		return 0, fmt.Errorf("%w: `%v` does not fit into 32 bits", ErrInvalidValue, s)
	}
	return result, nil
}

// Marshal converts register value to dump line (without line ending).
func Marshal(v canxl.RegisterValue) []byte {
	return []byte(fmt.Sprintf("0x%08X 0x%08X", v.Address, v.Value))
}

// MarshalDump converts register values to dump text, one value per line.
func MarshalDump(d canxl.Dump) []byte {
	buf := new(bytes.Buffer)
	for _, v := range d {
		buf.Write(Marshal(v))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
