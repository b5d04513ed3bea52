package regmap

import "errors"

var (
	ErrUnknownEnumType  = errors.New("unknown enum type given")
	ErrUnknownEnumValue = errors.New("unknown enum value given")
)

// LookupEnumerations is list of enumerations referenced by Field.Lookup
type LookupEnumerations []Enum

func (le LookupEnumerations) FindValue(enum string, value uint32) (EnumValue, error) {
	for _, e := range le {
		if e.Name != enum {
			continue
		}
		for _, v := range e.Values {
			if v.Value == value {
				return v, nil
			}
		}
		return EnumValue{}, ErrUnknownEnumValue
	}
	return EnumValue{}, ErrUnknownEnumType
}

func (le LookupEnumerations) Exists(enum string) bool {
	for _, e := range le {
		if e.Name == enum {
			return true
		}
	}
	return false
}

type Enum struct {
	Name   string      `json:"Name"`
	Values []EnumValue `json:"EnumValues"`
}

type EnumValue struct {
	Name  string `json:"Name"`
	Value uint32 `json:"Value"`
}
