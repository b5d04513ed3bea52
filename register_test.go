package canxl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDump_Find(t *testing.T) {
	d := Dump{
		{Address: 0x64, Value: 1},
		{Address: 0x68, Value: 2},
		{Address: 0x64, Value: 3},
	}

	rv, ok := d.Find(0x64)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), rv.Value)

	_, ok = d.Find(0x6C)
	assert.False(t, ok)
}

func TestDump_Sort(t *testing.T) {
	d := Dump{
		{Address: 0x68, Value: 1},
		{Address: 0x64, Value: 2},
		{Address: 0x68, Value: 3},
		{Address: 0x00, Value: 4},
	}
	d.Sort()

	assert.Equal(t, Dump{
		{Address: 0x00, Value: 4},
		{Address: 0x64, Value: 2},
		{Address: 0x68, Value: 1},
		{Address: 0x68, Value: 3},
	}, d)
}

func TestParseVariant(t *testing.T) {
	var testCases = []struct {
		when        string
		expect      Variant
		expectError string
	}{
		{when: "X_CAN", expect: VariantXCAN},
		{when: "xcan", expect: VariantXCAN},
		{when: "xs-can", expect: VariantXSCAN},
		{when: " X_CANB ", expect: VariantXCANB},
		{when: "M_CAN", expectError: "unknown CAN IP variant: `M_CAN`"},
	}
	for _, tc := range testCases {
		t.Run(tc.when, func(t *testing.T) {
			v, err := ParseVariant(tc.when)
			if tc.expectError != "" {
				assert.EqualError(t, err, tc.expectError)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expect, v)
		})
	}
}

func TestParseBlock(t *testing.T) {
	b, err := ParseBlock("prt")
	assert.NoError(t, err)
	assert.Equal(t, BlockPRT, b)

	_, err = ParseBlock("DMA")
	assert.EqualError(t, err, "unknown CAN IP block: `DMA`")
}

func TestCheckSupported(t *testing.T) {
	var testCases = []struct {
		whenVariant Variant
		whenBlock   Block
		expectError string
	}{
		{whenVariant: VariantXCAN, whenBlock: BlockMH},
		{whenVariant: VariantXCAN, whenBlock: BlockPRT},
		{whenVariant: VariantXCAN, whenBlock: BlockIRC},
		{whenVariant: VariantXSCAN, whenBlock: BlockMH},
		{whenVariant: VariantXSCAN, whenBlock: BlockPRT},
		{whenVariant: VariantXSCAN, whenBlock: BlockIRC, expectError: "block is not supported by variant: XS_CAN/IRC"},
		{whenVariant: VariantXCANB, whenBlock: BlockPRT},
		{whenVariant: VariantXCANB, whenBlock: BlockMH, expectError: "block is not supported by variant: X_CANB/MH"},
		{whenVariant: "M_CAN", whenBlock: BlockPRT, expectError: "unknown CAN IP variant: `M_CAN`"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.whenVariant)+"/"+string(tc.whenBlock), func(t *testing.T) {
			err := CheckSupported(tc.whenVariant, tc.whenBlock)
			if tc.expectError != "" {
				assert.EqualError(t, err, tc.expectError)
				return
			}
			assert.NoError(t, err)
		})
	}
}
