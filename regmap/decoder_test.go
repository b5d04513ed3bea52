package regmap

import (
	"testing"

	"github.com/aldas/go-canxl-regs"
	test_test "github.com/aldas/go-canxl-regs/test"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecoder(t *testing.T, v canxl.Variant, b canxl.Block, config DecoderConfig) *Decoder {
	s, err := LoadEmbedded(v, b)
	require.NoError(t, err)
	return NewDecoderWithConfig(s, config)
}

func TestDecoder_Decode_fields(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXCAN, canxl.BlockPRT, DecoderConfig{DecodeLookupsToEnumType: true})

	report, err := d.Decode(canxl.Dump{{Address: 0x408, Value: 0x05000D09}})
	require.NoError(t, err)

	assert.Equal(t, canxl.VariantXCAN, report.Variant)
	assert.Equal(t, canxl.BlockPRT, report.Block)
	require.Len(t, report.Registers, 1)
	stat := report.Registers[0]
	assert.Equal(t, "STAT", stat.Name)
	assert.Equal(t, uint32(0x408), stat.Address)
	assert.Equal(t, "0 0 0 0  0 1 0 1  0 0 0 0  0 0 0 0  0 0 0 0  1 1 0 1  0 0 0 0  1 0 0 1", stat.Binary)

	expect := []canxl.DecodedField{
		{Name: "ACT", Range: canxl.BitRange{End: 1, Start: 0}, Value: 1, Enum: "idle", Description: "Activity"},
		{Name: "INT", Range: canxl.BitRange{End: 2, Start: 2}, Value: 0, Description: "Integrating to bus"},
		{Name: "STP", Range: canxl.BitRange{End: 3, Start: 3}, Value: 1, Description: "Protocol controller stopped"},
		{Name: "CLKA", Range: canxl.BitRange{End: 4, Start: 4}, Value: 0, Description: "Clock active"},
		{Name: "FIMA", Range: canxl.BitRange{End: 5, Start: 5}, Value: 0, Description: "Fault injection module active"},
		{Name: "EP", Range: canxl.BitRange{End: 6, Start: 6}, Value: 0, Description: "Error passive"},
		{Name: "BO", Range: canxl.BitRange{End: 7, Start: 7}, Value: 0, Description: "Bus off"},
		{Name: "TDCV", Range: canxl.BitRange{End: 15, Start: 8}, Value: 0x0D, Description: "Transmitter delay compensation value"},
		{Name: "REC", Range: canxl.BitRange{End: 22, Start: 16}, Value: 0, Description: "Receive error counter"},
		{Name: "RP", Range: canxl.BitRange{End: 23, Start: 23}, Value: 0, Description: "Receive error passive"},
		{Name: "TEC", Range: canxl.BitRange{End: 31, Start: 24}, Value: 5, Description: "Transmit error counter"},
	}
	if diff := cmp.Diff(expect, stat.Fields); diff != "" {
		t.Errorf("decoded fields mismatch (-want +got):\n%s", diff)
	}
	test_test.AssertNoFindings(t, report.Findings, canxl.SeverityError, canxl.SeverityWarning)
}

func TestDecoder_Decode_PRT(t *testing.T) {
	var testCases = []struct {
		name          string
		givenConfig   DecoderConfig
		when          canxl.Dump
		expectFinding map[canxl.Severity]string
		expectNo      []canxl.Severity
	}{
		{
			name:        "ok, valid endianness and release",
			givenConfig: DecoderConfig{DecodeLookupsToEnumType: true},
			when: canxl.Dump{
				{Address: 0x400, Value: 0x87654321},
				{Address: 0x404, Value: 0x12030615},
			},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityInfoHighlighted: "protocol controller release 1.2.0 from 2023-06-15",
			},
			expectNo: []canxl.Severity{canxl.SeverityError, canxl.SeverityWarning},
		},
		{
			name: "nok, swapped endianness",
			when: canxl.Dump{{Address: 0x000, Value: 0x21436587}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityError: "endianness test value has swapped byte order (0x21436587)",
			},
		},
		{
			name: "nok, wrong endianness value",
			when: canxl.Dump{{Address: 0x000, Value: 0x12345678}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityError: "endianness test value is 0x12345678, expected 0x87654321",
			},
		},
		{
			name: "nok, release date is not BCD",
			when: canxl.Dump{{Address: 0x004, Value: 0x1203061A}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityWarning:         "release date is not valid BCD (MON=0x06, DAY=0x1A)",
				canxl.SeverityInfoHighlighted: "protocol controller release 1.2.0",
			},
		},
		{
			name: "nok, bus off",
			when: canxl.Dump{{Address: 0x008, Value: 0xF8000080}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityError:   "protocol controller is in bus off state",
				canxl.SeverityWarning: "error counter 248 is above warning limit 96",
			},
		},
		{
			name: "nok, error passive",
			when: canxl.Dump{{Address: 0x008, Value: 0x00000041}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityWarning: "protocol controller is error passive",
			},
			expectNo: []canxl.Severity{canxl.SeverityError},
		},
		{
			name: "nok, error events pending",
			when: canxl.Dump{{Address: 0x020, Value: 0x00000048}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityWarning: "Acknowledge error event is pending",
				canxl.SeverityError:   "DO event is pending",
			},
		},
		{
			name: "nok, unknown address",
			when: canxl.Dump{{Address: 0x0FC, Value: 1}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityWarning: "unknown register address 0x000000FC (value 0x00000001) for X_CAN/PRT",
			},
		},
		{
			name: "nok, reserved bits set",
			when: canxl.Dump{{Address: 0x044, Value: 0x00000104}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityWarning: "reserved bits are set: 0x00000004",
			},
		},
		{
			name:        "ok, verbose findings",
			givenConfig: DecoderConfig{Verbose: true},
			when: canxl.Dump{
				{Address: 0x060, Value: 0x00000001},
				{Address: 0x460, Value: 0x00000003},
			},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityInfoVerbose: "register seen multiple times, using last value 0x00000003 (previous 0x00000001)",
			},
		},
		{
			name:        "ok, bit-timing with clock",
			givenConfig: DecoderConfig{ClockHz: 80_000_000},
			when: canxl.Dump{
				{Address: 0x460, Value: 0x00000005}, // FDOE + TDCE
				{Address: 0x464, Value: 0x007E1F1F},
				{Address: 0x468, Value: 0x201E0707},
			},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityCalculation: "arbitration phase: bitrate 500 kbit/s, sample point 80.0 %, 160 tq per bit (BRP 1), TSEG1 127, TSEG2 32, SJW 32",
			},
			expectNo: []canxl.Severity{canxl.SeverityError, canxl.SeverityWarning, canxl.SeverityRecommendation},
		},
		{
			name:        "ok, TDC recommended",
			givenConfig: DecoderConfig{ClockHz: 80_000_000},
			when: canxl.Dump{
				{Address: 0x460, Value: 0x00000001}, // FDOE
				{Address: 0x464, Value: 0x007E1F1F},
				{Address: 0x468, Value: 0x001E0707},
			},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityCalculation:    "fd phase: bitrate 2 Mbit/s, sample point 80.0 %",
				canxl.SeverityRecommendation: "enable transmitter delay compensation, DBTP data bitrate 2 Mbit/s is above 1 Mbit/s",
			},
		},
		{
			name: "ok, bit-timing without clock",
			when: canxl.Dump{{Address: 0x464, Value: 0x007E1F1F}},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityCalculation: "arbitration phase: sample point 80.0 %, 160 tq per bit (BRP 1)",
				canxl.SeverityInfo:        "CAN clock frequency is not set",
			},
		},
		{
			name:        "ok, XL without transceiver mode switching",
			givenConfig: DecoderConfig{ClockHz: 160_000_000},
			when: canxl.Dump{
				{Address: 0x460, Value: 0x00000007}, // FDOE + XLOE + TDCE
				{Address: 0x464, Value: 0x007E1F1F},
				{Address: 0x468, Value: 0x201E0707},
				{Address: 0x46C, Value: 0x06040101},
			},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityCalculation:    "xl phase: bitrate 20 Mbit/s",
				canxl.SeverityRecommendation: "XL data bitrate 20 Mbit/s requires transceiver mode switching",
			},
		},
		{
			name:        "nok, PWM not configured",
			givenConfig: DecoderConfig{ClockHz: 80_000_000},
			when: canxl.Dump{
				{Address: 0x460, Value: 0x00000027}, // FDOE + XLOE + TDCE + XLTR
				{Address: 0x464, Value: 0x007E1F1F},
				{Address: 0x46C, Value: 0x06040101},
				{Address: 0x470, Value: 0x00000000},
			},
			expectFinding: map[canxl.Severity]string{
				canxl.SeverityError: "transceiver mode switching is enabled but PWM phases are not configured",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDecoder(t, canxl.VariantXCAN, canxl.BlockPRT, tc.givenConfig)

			report, err := d.Decode(tc.when)
			require.NoError(t, err)

			for sev, msg := range tc.expectFinding {
				test_test.AssertFindingPresent(t, report.Findings, sev, msg)
			}
			test_test.AssertNoFindings(t, report.Findings, tc.expectNo...)
		})
	}
}

func TestDecoder_Decode_MH(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXCAN, canxl.BlockMH, DecoderConfig{DecodeLookupsToEnumType: true})

	report, err := d.Decode(canxl.Dump{
		{Address: 0x000, Value: 0x13040916},
		{Address: 0x004, Value: 0x00000000},
		{Address: 0x008, Value: 0x00000706},
		{Address: 0x00C, Value: 0x00000103},
		{Address: 0x014, Value: 0x00000000},
	})
	require.NoError(t, err)

	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityInfoHighlighted, "message handler release 1.3.0 from 2024-09-16")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityInfoHighlighted, "message handler is not started")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityError, "unknown enum value given: TX_PRIORITY has no value 3")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityError, "message handler reports DMA_ERR (DMA transfer error)")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityRecommendation, "enable descriptor CRC checks")
}

func TestDecoder_Decode_IRC(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXCAN, canxl.BlockIRC, DecoderConfig{})

	report, err := d.Decode(canxl.Dump{
		{Address: 0x300, Value: 0x00000101},
		{Address: 0x304, Value: 0x00000800},
		{Address: 0x308, Value: 0x00000004},
		{Address: 0x320, Value: 0x00000100},
		{Address: 0x324, Value: 0x00000800},
	})
	require.NoError(t, err)

	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityWarning, "error interrupt PRT_BUS_OFF (Bus off state entered) is pending")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityInfoHighlighted, "error interrupt is pending and enabled")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityError, "safety interrupt MH_DMA_TO (DMA transfer timeout) is pending")
	test_test.AssertFindingPresent(t, report.Findings, canxl.SeverityInfoHighlighted, "functional interrupt is pending and enabled (value 0x1)")
	assert.Equal(t, 1, report.Findings.Count(canxl.SeverityError))
}

func TestDecoder_Decode_reservedField(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXCANB, canxl.BlockPRT, DecoderConfig{DecodeReservedFields: true})

	report, err := d.Decode(canxl.Dump{{Address: 0x044, Value: 0x00000016}})
	require.NoError(t, err)

	ctrl, ok := report.FindRegister("CTRL")
	require.True(t, ok)
	reserved, ok := ctrl.FindField("RESERVED")
	require.True(t, ok)
	assert.Equal(t, uint32(0x4), reserved.Value)
	strt, _ := ctrl.FindField("STRT")
	assert.Equal(t, uint32(1), strt.Value)
}

func TestDecoder_Decode_duplicateAddressLastValueWins(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXCAN, canxl.BlockPRT, DecoderConfig{})

	report, err := d.Decode(canxl.Dump{
		{Address: 0x420, Value: 0x80000000},
		{Address: 0x404, Value: 0x12030615},
		{Address: 0x020, Value: 0x00000000},
	})
	require.NoError(t, err)

	require.Len(t, report.Registers, 2)
	assert.Equal(t, "EVNT", report.Registers[0].Name)
	assert.Equal(t, uint32(0), report.Registers[0].Value)
	assert.Equal(t, "PREL", report.Registers[1].Name)
	test_test.AssertNoFindings(t, report.Findings, canxl.SeverityWarning, canxl.SeverityError)
}

func TestDecoder_Decode_emptyDump(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXSCAN, canxl.BlockMH, DecoderConfig{})

	_, err := d.Decode(canxl.Dump{})
	assert.ErrorIs(t, err, ErrDecodeEmptyDump)
}

func TestFormatRegister(t *testing.T) {
	d := newTestDecoder(t, canxl.VariantXCAN, canxl.BlockPRT, DecoderConfig{DecodeLookupsToEnumType: true})
	report, err := d.Decode(canxl.Dump{{Address: 0x44C, Value: 0x00000005}})
	require.NoError(t, err)

	out := FormatRegister(report.Registers[0])

	assert.Contains(t, out, "TEST (0x0000044C) = 0x00000005\n")
	assert.Contains(t, out, "  LBCK       [0]       = 1\n")
	assert.Contains(t, out, "  TXC        [2:1]     = 2 (dominant)\n")
}
