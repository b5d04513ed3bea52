package canxl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownVariant = errors.New("unknown CAN IP variant")
	ErrUnknownBlock   = errors.New("unknown CAN IP block")
	// ErrUnsupportedBlock indicates that variant does not have given sub-block
	ErrUnsupportedBlock = errors.New("block is not supported by variant")
)

// RegisterValue is value read from register at given address.
type RegisterValue struct {
	Address uint32 `json:"address" msgpack:"address"`
	Value   uint32 `json:"value" msgpack:"value"`
}

// Dump is list of register values, usually read from device memory dump or debugger output.
type Dump []RegisterValue

// Find returns last value seen for given address.
func (d Dump) Find(address uint32) (RegisterValue, bool) {
	for i := len(d) - 1; i >= 0; i-- {
		if d[i].Address == address {
			return d[i], true
		}
	}
	return RegisterValue{}, false
}

// Sort sorts dump by address. Order of values with same address is preserved.
func (d Dump) Sort() {
	sort.SliceStable(d, func(i, j int) bool {
		return d[i].Address < d[j].Address
	})
}

// Variant identifies CAN IP module variant whose registers are decoded.
type Variant string

const (
	VariantXCAN  Variant = "X_CAN"
	VariantXSCAN Variant = "XS_CAN"
	VariantXCANB Variant = "X_CANB"
)

// Variants returns all supported variants.
func Variants() []Variant {
	return []Variant{VariantXCAN, VariantXSCAN, VariantXCANB}
}

// ParseVariant parses variant name. Underscores, dashes and case are ignored so `xcan`, `X-CAN` and `X_CAN` are all
// the same variant.
func ParseVariant(name string) (Variant, error) {
	n := normalizeName(name)
	for _, v := range Variants() {
		if normalizeName(string(v)) == n {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: `%v`", ErrUnknownVariant, name)
}

// Block identifies sub-block of CAN IP module.
type Block string

const (
	// BlockMH is Message Handler
	BlockMH Block = "MH"
	// BlockPRT is Protocol controller
	BlockPRT Block = "PRT"
	// BlockIRC is Interrupt controller
	BlockIRC Block = "IRC"
)

// ParseBlock parses sub-block name (case-insensitive).
func ParseBlock(name string) (Block, error) {
	n := normalizeName(name)
	for _, b := range []Block{BlockMH, BlockPRT, BlockIRC} {
		if normalizeName(string(b)) == n {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: `%v`", ErrUnknownBlock, name)
}

// SupportedBlocks returns sub-blocks that have register map for given variant.
func SupportedBlocks(v Variant) []Block {
	switch v {
	case VariantXCAN:
		return []Block{BlockMH, BlockPRT, BlockIRC}
	case VariantXSCAN:
		return []Block{BlockMH, BlockPRT}
	case VariantXCANB:
		return []Block{BlockPRT}
	}
	return nil
}

// CheckSupported returns error when variant does not have given sub-block.
func CheckSupported(v Variant, b Block) error {
	blocks := SupportedBlocks(v)
	if blocks == nil {
		return fmt.Errorf("%w: `%v`", ErrUnknownVariant, v)
	}
	for _, tmp := range blocks {
		if tmp == b {
			return nil
		}
	}
	return fmt.Errorf("%w: %v/%v", ErrUnsupportedBlock, v, b)
}

func normalizeName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "")
	return strings.ReplaceAll(n, "-", "")
}
