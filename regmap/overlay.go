package regmap

import (
	"fmt"

	"github.com/aldas/go-canxl-regs"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Overlay is set of register definitions that extend or replace registers of embedded register map. Used for
// vendor specific registers and fixes to embedded definitions without rebuilding the binary.
//
//	variant = "X_CAN"
//	block   = "PRT"
//
//	register "TSCFG" {
//	  offset      = "0x080"
//	  reset       = "0x00000000"
//	  description = "Time Stamp Configuration"
//	  field "TSP" {
//	    bits        = [3, 0]
//	    description = "Time stamp prescaler"
//	  }
//	}
type Overlay struct {
	Variant   canxl.Variant
	Block     canxl.Block
	Registers Registers
}

type hclOverlayFile struct {
	Variant   string         `hcl:"variant"`
	Block     string         `hcl:"block"`
	Registers []*hclRegister `hcl:"register,block"`
}

type hclRegister struct {
	Name        string      `hcl:"name,label"`
	Offset      string      `hcl:"offset"`
	Reset       *string     `hcl:"reset,optional"`
	Description *string     `hcl:"description,optional"`
	Access      *string     `hcl:"access,optional"`
	Fields      []*hclField `hcl:"field,block"`
}

type hclField struct {
	Name        string  `hcl:"name,label"`
	Bits        []int   `hcl:"bits"`
	Description *string `hcl:"description,optional"`
	Access      *string `hcl:"access,optional"`
	Lookup      *string `hcl:"lookup,optional"`
}

// LoadOverlay parses register map overlay from HCL file.
func LoadOverlay(filePath string) (Overlay, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return Overlay{}, fmt.Errorf("failed to parse overlay file %s: %w", filePath, diags)
	}

	var parsed hclOverlayFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &parsed)
	if diags.HasErrors() {
		return Overlay{}, fmt.Errorf("failed to decode overlay file %s: %w", filePath, diags)
	}

	o, err := parsed.toOverlay()
	if err != nil {
		return Overlay{}, fmt.Errorf("invalid overlay file %s: %w", filePath, err)
	}
	return o, nil
}

func (f hclOverlayFile) toOverlay() (Overlay, error) {
	variant, err := canxl.ParseVariant(f.Variant)
	if err != nil {
		return Overlay{}, err
	}
	block, err := canxl.ParseBlock(f.Block)
	if err != nil {
		return Overlay{}, err
	}
	if err := canxl.CheckSupported(variant, block); err != nil {
		return Overlay{}, err
	}

	o := Overlay{Variant: variant, Block: block, Registers: make(Registers, 0, len(f.Registers))}
	for _, hr := range f.Registers {
		r, err := hr.toRegister()
		if err != nil {
			return Overlay{}, fmt.Errorf("register %v: %w", hr.Name, err)
		}
		o.Registers = append(o.Registers, r)
	}
	return o, nil
}

func (hr hclRegister) toRegister() (Register, error) {
	offset, err := parseUint32(hr.Offset)
	if err != nil {
		return Register{}, fmt.Errorf("offset: %w", err)
	}
	r := Register{
		Name:        hr.Name,
		Offset:      Hex(offset),
		Access:      AccessReadWrite,
		Description: stringOrEmpty(hr.Description),
		Fields:      make([]Field, 0, len(hr.Fields)),
	}
	if hr.Reset != nil {
		reset, err := parseUint32(*hr.Reset)
		if err != nil {
			return Register{}, fmt.Errorf("reset: %w", err)
		}
		r.Reset = Hex(reset)
	}
	if hr.Access != nil {
		if err := r.Access.parse(*hr.Access); err != nil {
			return Register{}, err
		}
	}

	for _, hf := range hr.Fields {
		f := Field{
			Name:        hf.Name,
			Description: stringOrEmpty(hf.Description),
			Lookup:      stringOrEmpty(hf.Lookup),
		}
		switch len(hf.Bits) {
		case 1:
			f.Bits = Bits{End: uint8(hf.Bits[0]), Start: uint8(hf.Bits[0])}
		case 2:
			f.Bits = Bits{End: uint8(hf.Bits[0]), Start: uint8(hf.Bits[1])}
		default:
			return Register{}, fmt.Errorf("field %v: %w: bits must be [end, start] or [bit]", hf.Name, ErrInvalidBitsValue)
		}
		for _, b := range hf.Bits {
			if b < 0 || b >= canxl.RegisterWidth {
				return Register{}, fmt.Errorf("field %v: %w: bit %d is outside of register", hf.Name, ErrInvalidBitsValue, b)
			}
		}
		if hf.Access != nil {
			if err := f.Access.parse(*hf.Access); err != nil {
				return Register{}, fmt.Errorf("field %v: %w", hf.Name, err)
			}
		}
		r.Fields = append(r.Fields, f)
	}
	return r, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Merge returns copy of schema where overlay registers replace registers with the same name and new registers are
// appended. Merged schema is validated.
func (s Schema) Merge(o Overlay) (Schema, error) {
	if o.Variant != s.Variant || o.Block != s.Block {
		return Schema{}, fmt.Errorf("overlay for %v/%v can not be merged into %v/%v", o.Variant, o.Block, s.Variant, s.Block)
	}
	merged := s
	merged.Registers = make(Registers, len(s.Registers), len(s.Registers)+len(o.Registers))
	copy(merged.Registers, s.Registers)

	for _, r := range o.Registers {
		replaced := false
		for i, existing := range merged.Registers {
			if existing.Name == r.Name {
				merged.Registers[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Registers = append(merged.Registers, r)
		}
	}
	if errs := merged.Validate(); len(errs) > 0 {
		return Schema{}, fmt.Errorf("merged register map is invalid: %w", errs[0])
	}
	return merged, nil
}
