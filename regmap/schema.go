package regmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/aldas/go-canxl-regs"
)

// Access is register or field access type.
type Access string

const (
	// AccessReadWrite - field can be read and written
	AccessReadWrite Access = "RW"
	// AccessReadOnly - writes are ignored
	AccessReadOnly Access = "RO"
	// AccessWriteOnly - reads return 0 (unlock keys, clear registers)
	AccessWriteOnly Access = "WO"
	// AccessReadClear - reading clears the field
	AccessReadClear Access = "RC"
	// AccessWrite1Clear - writing 1 clears the bit (event and interrupt flags)
	AccessWrite1Clear Access = "W1C"
	// AccessReadSet - reading sets the field
	AccessReadSet Access = "RS"
)

var (
	ErrUnknownAccess    = errors.New("unknown access type")
	ErrUnknownRegister  = errors.New("unknown register")
	ErrInvalidBitsValue = errors.New("invalid field bits value")
)

// UnmarshalJSON custom unmarshalling function for Access.
func (a *Access) UnmarshalJSON(b []byte) error {
	if len(b) > 1 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	return a.parse(string(b))
}

func (a *Access) parse(t string) error {
	var tmp Access
	switch t {
	case "":
		tmp = AccessReadWrite
	case string(AccessReadWrite), string(AccessReadOnly), string(AccessWriteOnly), string(AccessReadClear),
		string(AccessWrite1Clear), string(AccessReadSet):
		tmp = Access(t)
	default:
		return fmt.Errorf("%w: `%v`", ErrUnknownAccess, t)
	}
	*a = tmp
	return nil
}

// Hex is uint32 that can be written in JSON as number or as hex string ("0x064").
type Hex uint32

// UnmarshalJSON custom unmarshalling function for Hex.
func (h *Hex) UnmarshalJSON(b []byte) error {
	if len(b) > 1 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	v, err := parseUint32(string(b))
	if err != nil {
		return err
	}
	*h = Hex(v)
	return nil
}

// MarshalJSON marshals value as hex string.
func (h Hex) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%08X", uint32(h)))
}

func parseUint32(s string) (uint32, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid 32bit value `%v`: %w", s, err)
	}
	return uint32(v), nil
}

// Bits is field bit range written in JSON as `"29:25"` or `"7"` (datasheet notation).
type Bits canxl.BitRange

// UnmarshalJSON custom unmarshalling function for Bits.
func (b *Bits) UnmarshalJSON(raw []byte) error {
	if len(raw) > 1 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	r, err := ParseBits(string(raw))
	if err != nil {
		return err
	}
	*b = Bits(r)
	return nil
}

// MarshalJSON marshals bits in datasheet notation.
func (b Bits) MarshalJSON() ([]byte, error) {
	r := canxl.BitRange(b)
	if r.End == r.Start {
		return json.Marshal(strconv.Itoa(int(r.End)))
	}
	return json.Marshal(fmt.Sprintf("%d:%d", r.End, r.Start))
}

// ParseBits parses bit range in `END:START` or `BIT` notation. Square brackets are allowed (`[29:25]`).
func ParseBits(s string) (canxl.BitRange, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	endRaw, startRaw, isRange := strings.Cut(s, ":")
	end, err := strconv.ParseUint(strings.TrimSpace(endRaw), 10, 8)
	if err != nil {
		return canxl.BitRange{}, fmt.Errorf("%w: `%v`", ErrInvalidBitsValue, s)
	}
	start := end
	if isRange {
		start, err = strconv.ParseUint(strings.TrimSpace(startRaw), 10, 8)
		if err != nil {
			return canxl.BitRange{}, fmt.Errorf("%w: `%v`", ErrInvalidBitsValue, s)
		}
	}
	r := canxl.BitRange{End: uint8(end), Start: uint8(start)}
	if err := r.Validate(); err != nil {
		return canxl.BitRange{}, err
	}
	return r, nil
}

// Schema is root element for register map JSON schema of one variant sub-block.
type Schema struct {
	Comment     string             `json:"Comment"`
	Version     string             `json:"Version"`
	Variant     canxl.Variant      `json:"Variant"`
	Block       canxl.Block        `json:"Block"`
	BaseAddress Hex                `json:"BaseAddress"`
	Registers   Registers          `json:"Registers"`
	Enums       LookupEnumerations `json:"LookupEnumerations"`
}

// LoadSchema loads register map schema from JSON file
func LoadSchema(filesystem fs.FS, path string) (Schema, error) {
	f, err := filesystem.Open(path)
	if err != nil {
		return Schema{}, err
	}
	defer f.Close()

	schema := Schema{}
	if err := json.NewDecoder(f).Decode(&schema); err != nil {
		return Schema{}, fmt.Errorf("failed to decode register map %v: %w", path, err)
	}
	if err := schema.resolveDerived(); err != nil {
		return Schema{}, fmt.Errorf("register map %v: %w", path, err)
	}
	return schema, nil
}

// resolveDerived copies fields from register named in DerivedFrom to registers that do not define their own fields.
func (s *Schema) resolveDerived() error {
	for i, r := range s.Registers {
		if r.DerivedFrom == "" || len(r.Fields) > 0 {
			continue
		}
		src, ok := s.Registers.FindByName(r.DerivedFrom)
		if !ok {
			return fmt.Errorf("%w: %v is derived from unknown register %v", ErrUnknownRegister, r.Name, r.DerivedFrom)
		}
		if src.DerivedFrom != "" && len(src.Fields) == 0 {
			return fmt.Errorf("register %v is derived from derived register %v", r.Name, src.Name)
		}
		fields := make([]Field, len(src.Fields))
		copy(fields, src.Fields)
		s.Registers[i].Fields = fields
	}
	return nil
}

// Registers is list of Register instances
type Registers []Register

// Register is definition of one 32bit register of sub-block.
type Register struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	// Offset is register address relative to sub-block BaseAddress
	Offset Hex    `json:"Offset"`
	Reset  Hex    `json:"Reset"`
	Access Access `json:"Access"`
	// DerivedFrom names register whose fields are reused (clear/enable registers mirror raw status registers)
	DerivedFrom string  `json:"DerivedFrom,omitempty"`
	Fields      []Field `json:"Fields"`
}

// Field is definition of named bit field in register.
type Field struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Bits        Bits   `json:"Bits"`
	Access      Access `json:"Access,omitempty"`
	// Lookup is name of LookupEnumeration used to convert field value to text
	Lookup string `json:"Lookup,omitempty"`
}

// Range returns field bit range.
func (f Field) Range() canxl.BitRange {
	return canxl.BitRange(f.Bits)
}

// UsedMask returns mask of all bits that belong to defined fields.
func (r Register) UsedMask() uint32 {
	var mask uint32
	for _, f := range r.Fields {
		mask |= f.Range().Mask()
	}
	return mask
}

// FindField returns field by its name.
func (r Register) FindField(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FindByName returns register by its name.
func (rs Registers) FindByName(name string) (Register, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return Register{}, false
}

// FindByOffset returns register by its offset.
func (rs Registers) FindByOffset(offset uint32) (Register, bool) {
	for _, r := range rs {
		if uint32(r.Offset) == offset {
			return r, true
		}
	}
	return Register{}, false
}

// Address returns absolute address of register.
func (s Schema) Address(r Register) uint32 {
	return uint32(s.BaseAddress) + uint32(r.Offset)
}

// Resolve returns absolute address for register name. Used by dump readers to accept `NAME VALUE` lines.
func (s Schema) Resolve(name string) (uint32, bool) {
	for _, r := range s.Registers {
		if strings.EqualFold(r.Name, name) {
			return s.Address(r), true
		}
	}
	return 0, false
}

// Validate checks schema for mistakes.
func (s Schema) Validate() []error {
	result := make([]error, 0)
	if err := canxl.CheckSupported(s.Variant, s.Block); err != nil {
		result = append(result, err)
	}

	names := map[string]bool{}
	offsets := map[uint32]string{}
	for _, r := range s.Registers {
		// RULE: register name and offset must be unique within sub-block
		if names[r.Name] {
			result = append(result, fmt.Errorf("%v/%v has duplicate register name: %v", s.Variant, s.Block, r.Name))
		}
		names[r.Name] = true
		if other, ok := offsets[uint32(r.Offset)]; ok {
			result = append(result, fmt.Errorf("%v/%v registers %v and %v have same offset 0x%03X", s.Variant, s.Block, other, r.Name, uint32(r.Offset)))
		}
		offsets[uint32(r.Offset)] = r.Name

		if r.Offset%4 != 0 {
			result = append(result, fmt.Errorf("%v/%v register %v offset 0x%03X is not 4 byte aligned", s.Variant, s.Block, r.Name, uint32(r.Offset)))
		}
		if err := s.validateFields(r); err != nil {
			result = append(result, err...)
		}
	}
	if len(result) > 0 {
		return result
	}
	return nil
}

func (s Schema) validateFields(r Register) []error {
	result := make([]error, 0)
	fieldNames := map[string]bool{}
	for i, f := range r.Fields {
		if fieldNames[f.Name] {
			result = append(result, fmt.Errorf("register %v has duplicate field name: %v", r.Name, f.Name))
		}
		fieldNames[f.Name] = true

		if err := f.Range().Validate(); err != nil {
			result = append(result, fmt.Errorf("register %v field %v: %w", r.Name, f.Name, err))
		}
		for _, other := range r.Fields[i+1:] {
			if f.Range().Overlaps(other.Range()) {
				result = append(result, fmt.Errorf("register %v fields %v and %v overlap", r.Name, f.Name, other.Name))
			}
		}
		if f.Lookup != "" && !s.Enums.Exists(f.Lookup) {
			result = append(result, fmt.Errorf("register %v field %v uses unknown lookup: %v", r.Name, f.Name, f.Lookup))
		}
	}
	if reserved := uint32(r.Reset) &^ r.UsedMask(); reserved != 0 {
		result = append(result, fmt.Errorf("register %v reset value 0x%08X sets reserved bits 0x%08X", r.Name, uint32(r.Reset), reserved))
	}
	return result
}
