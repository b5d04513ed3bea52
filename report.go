package canxl

// DecodedField is value of single register field.
type DecodedField struct {
	Name  string   `json:"name" msgpack:"name"`
	Range BitRange `json:"range" msgpack:"range"`
	Value uint32   `json:"value" msgpack:"value"`
	// Enum is name of lookup value when field is enumeration and value is known.
	Enum        string `json:"enum,omitempty" msgpack:"enum,omitempty"`
	Description string `json:"description,omitempty" msgpack:"description,omitempty"`
}

// DecodedRegister is register value split into its fields.
type DecodedRegister struct {
	Name    string         `json:"name" msgpack:"name"`
	Address uint32         `json:"address" msgpack:"address"`
	Value   uint32         `json:"value" msgpack:"value"`
	Binary  string         `json:"binary" msgpack:"binary"`
	Fields  []DecodedField `json:"fields" msgpack:"fields"`
}

// FindField returns decoded field by its name.
func (r DecodedRegister) FindField(name string) (DecodedField, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return DecodedField{}, false
}

// Report is result of decoding register dump of single variant sub-block.
type Report struct {
	Variant   Variant           `json:"variant" msgpack:"variant"`
	Block     Block             `json:"block" msgpack:"block"`
	Registers []DecodedRegister `json:"registers" msgpack:"registers"`
	Findings  Findings          `json:"findings" msgpack:"findings"`
}

// FindRegister returns decoded register by its name.
func (r Report) FindRegister(name string) (DecodedRegister, bool) {
	for _, reg := range r.Registers {
		if reg.Name == name {
			return reg, true
		}
	}
	return DecodedRegister{}, false
}
