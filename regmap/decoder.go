package regmap

import (
	"errors"
	"fmt"

	"github.com/aldas/go-canxl-regs"
)

var (
	ErrDecodeEmptyDump = errors.New("decode failed, dump has no register values")
)

type DecoderConfig struct {
	// ClockHz is CAN clock frequency. When set, bit-timing registers are converted to bitrates.
	ClockHz float64
	// DecodeReservedFields instructs Decoder to include bits not covered by any field as `RESERVED` field in output
	DecodeReservedFields bool
	// DecodeLookupsToEnumType instructs Decoder to convert lookup field values to enum names
	DecodeLookupsToEnumType bool
	// Verbose instructs Decoder to add infoVerbose findings (reset value differences, duplicate addresses)
	Verbose bool
}

// Decoder decodes register dump of one variant sub-block.
type Decoder struct {
	config DecoderConfig
	schema Schema

	byAddress map[uint32]Register
	byOffset  map[uint32]Register
	checks    []check
}

// NewDecoderWithConfig creates new instance of register map decoder with given config
func NewDecoderWithConfig(schema Schema, config DecoderConfig) *Decoder {
	d := NewDecoder(schema)
	d.config = config
	return d
}

// NewDecoder creates new instance of register map decoder with lookups decoded to enum names
func NewDecoder(schema Schema) *Decoder {
	byAddress := make(map[uint32]Register, len(schema.Registers))
	byOffset := make(map[uint32]Register, len(schema.Registers))
	for _, r := range schema.Registers {
		byAddress[schema.Address(r)] = r
		byOffset[uint32(r.Offset)] = r
	}
	return &Decoder{
		config:    DecoderConfig{DecodeLookupsToEnumType: true},
		schema:    schema,
		byAddress: byAddress,
		byOffset:  byOffset,
		checks:    blockChecks(schema.Block),
	}
}

// Schema returns register map the decoder uses.
func (d *Decoder) Schema() Schema {
	return d.schema
}

// Resolve returns absolute address for register name.
func (d *Decoder) Resolve(name string) (uint32, bool) {
	return d.schema.Resolve(name)
}

// Decode decodes register values in dump into report. Findings about suspicious values are added to report, error
// is returned only when dump can not be decoded at all.
func (d *Decoder) Decode(dump canxl.Dump) (canxl.Report, error) {
	if len(dump) == 0 {
		return canxl.Report{}, ErrDecodeEmptyDump
	}
	report := canxl.Report{
		Variant:   d.schema.Variant,
		Block:     d.schema.Block,
		Registers: make([]canxl.DecodedRegister, 0, len(dump)),
		Findings:  make(canxl.Findings, 0),
	}

	// last value for register wins, earlier values are not decoded
	type registerValue struct {
		reg   Register
		value uint32
	}
	values := make([]registerValue, 0, len(dump))
	seen := map[string]int{}
	for _, rv := range dump {
		reg, ok := d.findRegister(rv.Address)
		if !ok {
			report.Findings.Add(canxl.SeverityWarning, "", "",
				"unknown register address 0x%08X (value 0x%08X) for %v/%v", rv.Address, rv.Value, d.schema.Variant, d.schema.Block)
			continue
		}
		if idx, ok := seen[reg.Name]; ok {
			if d.config.Verbose {
				report.Findings.Add(canxl.SeverityInfoVerbose, reg.Name, "",
					"register seen multiple times, using last value 0x%08X (previous 0x%08X)", rv.Value, values[idx].value)
			}
			values[idx].value = rv.Value
			continue
		}
		seen[reg.Name] = len(values)
		values = append(values, registerValue{reg: reg, value: rv.Value})
	}
	for _, v := range values {
		report.Registers = append(report.Registers, d.decodeRegister(v.reg, v.value, &report.Findings))
	}

	c := &checkContext{report: &report, config: d.config, schema: d.schema}
	for _, check := range d.checks {
		check(c)
	}
	return report, nil
}

func (d *Decoder) findRegister(address uint32) (Register, bool) {
	if r, ok := d.byAddress[address]; ok {
		return r, true
	}
	r, ok := d.byOffset[address]
	return r, ok
}

func (d *Decoder) decodeRegister(reg Register, value uint32, findings *canxl.Findings) canxl.DecodedRegister {
	result := canxl.DecodedRegister{
		Name:    reg.Name,
		Address: d.schema.Address(reg),
		Value:   value,
		Binary:  canxl.BinaryLine(value, canxl.RegisterWidth),
		Fields:  make([]canxl.DecodedField, 0, len(reg.Fields)),
	}

	for _, f := range reg.Fields {
		r := f.Range()
		df := canxl.DecodedField{
			Name:        f.Name,
			Range:       r,
			Value:       canxl.GetBits(value, r.End, r.Start),
			Description: f.Description,
		}
		if f.Lookup != "" && d.config.DecodeLookupsToEnumType {
			ev, err := d.schema.Enums.FindValue(f.Lookup, df.Value)
			if err != nil {
				findings.Add(canxl.SeverityError, reg.Name, f.Name, "%v: %v has no value %d", err, f.Lookup, df.Value)
			} else {
				df.Enum = ev.Name
			}
		}
		result.Fields = append(result.Fields, df)
	}

	reservedMask := ^reg.UsedMask()
	if reserved := value & reservedMask; reserved != 0 {
		findings.Add(canxl.SeverityWarning, reg.Name, "", "reserved bits are set: 0x%08X", reserved)
	}
	if d.config.DecodeReservedFields && reservedMask != 0 {
		result.Fields = append(result.Fields, canxl.DecodedField{
			Name:  reservedFieldName,
			Value: value & reservedMask,
		})
	}
	if d.config.Verbose && value != uint32(reg.Reset) {
		findings.Add(canxl.SeverityInfoVerbose, reg.Name, "", "value differs from reset value 0x%08X", uint32(reg.Reset))
	}
	return result
}

const reservedFieldName = "RESERVED"

// FormatRegister returns human-readable register description with bit numbers and fields.
func FormatRegister(r canxl.DecodedRegister) string {
	out := fmt.Sprintf("%v (0x%08X) = 0x%08X\n", r.Name, r.Address, r.Value)
	out += "  " + canxl.BitNumberLine(canxl.RegisterWidth) + "\n"
	out += "  " + r.Binary + "\n"
	for _, f := range r.Fields {
		if f.Name == reservedFieldName {
			out += fmt.Sprintf("  %-10v          = 0x%X\n", f.Name, f.Value)
			continue
		}
		line := fmt.Sprintf("  %-10v %-9v = %d", f.Name, f.Range, f.Value)
		if f.Enum != "" {
			line += " (" + f.Enum + ")"
		}
		out += line + "\n"
	}
	return out
}
