package bittiming

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Form field names. Input fields use `par_` prefix and output fields `res_` prefix.
const (
	FieldClockFreq  = "par_clk_freq"
	FieldBitrateArb = "par_bitrate_arb"
	FieldSPArb      = "par_sp_arb"
	FieldSJWArb     = "par_sjw_arb"
	FieldBitrateFD  = "par_bitrate_fd"
	FieldSPFD       = "par_sp_fd"
	FieldSJWFD      = "par_sjw_fd"
	FieldBitrateXL  = "par_bitrate_xl"
	FieldSPXL       = "par_sp_xl"
	FieldSJWXL      = "par_sjw_xl"
	FieldPWMShort   = "par_pwm_short"
	FieldPWMLong    = "par_pwm_long"
	FieldPWMOffset  = "par_pwm_offset"
	FieldMode       = "par_mode"
	FieldTDC        = "par_tdc"
	FieldTMS        = "par_tms"
	resultPrefix    = "res_"
	parameterPrefix = "par_"
	checkboxChecked = "on"
	unitKilo        = 1_000
	unitMega        = 1_000_000
)

// FloatFields are numeric input fields. Clock is in MHz, bitrates in kbit/s, sample points in percent, SJW in time
// quanta, PWM phases in nanoseconds and PWM offset in clock periods.
var FloatFields = []string{
	FieldClockFreq,
	FieldBitrateArb, FieldSPArb, FieldSJWArb,
	FieldBitrateFD, FieldSPFD, FieldSJWFD,
	FieldBitrateXL, FieldSPXL, FieldSJWXL,
	FieldPWMShort, FieldPWMLong, FieldPWMOffset,
}

// EnumFields are button-style input fields with fixed set of values.
var EnumFields = map[string][]string{
	FieldMode: {string(ModeCC), string(ModeFD), string(ModeXL)},
}

// CheckboxFields are boolean input fields.
var CheckboxFields = []string{FieldTDC, FieldTMS}

// ResultFields are output fields written by FormValues.
var ResultFields = []string{
	"res_brp", "res_tq_ns",
	"res_tq_arb", "res_tseg1_arb", "res_tseg2_arb", "res_sjw_arb", "res_bitrate_arb", "res_sp_arb", "res_bit_time_arb",
	"res_tq_fd", "res_tseg1_fd", "res_tseg2_fd", "res_sjw_fd", "res_bitrate_fd", "res_sp_fd", "res_bit_time_fd", "res_tdco_fd",
	"res_tq_xl", "res_tseg1_xl", "res_tseg2_xl", "res_sjw_xl", "res_bitrate_xl", "res_sp_xl", "res_bit_time_xl", "res_tdco_xl",
	"res_pwms", "res_pwml", "res_pwmo",
	"res_nbtp", "res_dbtp", "res_xbtp", "res_pcfg",
}

var ErrInvalidFormField = errors.New("invalid form field value")

// ParseForm reads calculator parameters from form values. Missing fields keep their DefaultParams values, checkbox
// fields are false when missing and true when value is `on`, `true` or `1`.
func ParseForm(form url.Values) (Params, error) {
	return ParseFormWithDefaults(form, DefaultParams())
}

// ParseFormWithDefaults is ParseForm where missing fields keep values from given defaults.
func ParseFormWithDefaults(form url.Values, defaults Params) (Params, error) {
	p := defaults

	floats := map[string]*float64{
		FieldBitrateArb: &p.Arbitration.Bitrate, FieldSPArb: &p.Arbitration.SamplePoint,
		FieldBitrateFD: &p.Data.Bitrate, FieldSPFD: &p.Data.SamplePoint,
		FieldBitrateXL: &p.XL.Bitrate, FieldSPXL: &p.XL.SamplePoint,
		FieldPWMShort: &p.PWMShortNs, FieldPWMLong: &p.PWMLongNs,
	}
	scale := map[string]float64{
		FieldBitrateArb: unitKilo, FieldBitrateFD: unitKilo, FieldBitrateXL: unitKilo,
	}
	// defaults are in bit/s and Hz so clock and bitrates are handled with their units
	if v, ok, err := formFloat(form, FieldClockFreq); err != nil {
		return Params{}, err
	} else if ok {
		p.ClockHz = v * unitMega
	}
	for name, target := range floats {
		v, ok, err := formFloat(form, name)
		if err != nil {
			return Params{}, err
		}
		if !ok {
			continue
		}
		if s, isScaled := scale[name]; isScaled {
			v *= s
		}
		*target = v
	}

	ints := map[string]*int{
		FieldSJWArb: &p.Arbitration.SJW, FieldSJWFD: &p.Data.SJW, FieldSJWXL: &p.XL.SJW,
		FieldPWMOffset: &p.PWMOffset,
	}
	for name, target := range ints {
		v, ok, err := formFloat(form, name)
		if err != nil {
			return Params{}, err
		}
		if !ok {
			continue
		}
		if v != float64(int(v)) {
			return Params{}, fmt.Errorf("%w: %v must be whole number", ErrInvalidFormField, name)
		}
		*target = int(v)
	}

	if raw := strings.TrimSpace(form.Get(FieldMode)); raw != "" {
		m, err := ParseMode(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %v: %v", ErrInvalidFormField, FieldMode, err)
		}
		p.Mode = m
	}

	p.TDC = formCheckbox(form, FieldTDC)
	p.TransceiverModeSwitching = formCheckbox(form, FieldTMS)
	return p, nil
}

func formFloat(form url.Values, name string) (float64, bool, error) {
	raw := strings.TrimSpace(form.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	// decimal comma is common in european locales
	raw = strings.Replace(raw, ",", ".", 1)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v: %v", ErrInvalidFormField, name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %v must be finite number", ErrInvalidFormField, name)
	}
	return v, true, nil
}

func formCheckbox(form url.Values, name string) bool {
	switch strings.ToLower(strings.TrimSpace(form.Get(name))) {
	case checkboxChecked, "true", "1", "yes":
		return true
	}
	return false
}

// FormValues writes result as `res_*` form values. Values for disabled phases are left empty. When result can not be
// encoded into registers, register fields are left empty and the encoding error is returned with the other values.
func (r Result) FormValues() (url.Values, error) {
	v := url.Values{}
	v.Set("res_brp", strconv.Itoa(r.BRP))
	v.Set("res_tq_ns", formatFormFloat(r.TQNs))

	for suffix, ph := range map[string]PhaseResult{"arb": r.Arbitration, "fd": r.Data, "xl": r.XL} {
		if !ph.Enabled {
			for _, name := range []string{"tq", "tseg1", "tseg2", "sjw", "bitrate", "sp", "bit_time", "tdco"} {
				v.Set(resultPrefix+name+"_"+suffix, "")
			}
			continue
		}
		v.Set("res_tq_"+suffix, strconv.Itoa(ph.TQPerBit))
		v.Set("res_tseg1_"+suffix, strconv.Itoa(ph.TSEG1))
		v.Set("res_tseg2_"+suffix, strconv.Itoa(ph.TSEG2))
		v.Set("res_sjw_"+suffix, strconv.Itoa(ph.SJW))
		v.Set("res_bitrate_"+suffix, formatFormFloat(ph.Bitrate/unitKilo))
		v.Set("res_sp_"+suffix, formatFormFloat(ph.SamplePoint))
		v.Set("res_bit_time_"+suffix, formatFormFloat(ph.BitTimeNs))
		if suffix != "arb" {
			v.Set("res_tdco_"+suffix, strconv.Itoa(ph.TDCO))
		}
	}
	v.Del("res_tdco_arb")

	if r.TMS {
		v.Set("res_pwms", strconv.Itoa(r.PWMS))
		v.Set("res_pwml", strconv.Itoa(r.PWML))
		v.Set("res_pwmo", strconv.Itoa(r.PWMO))
	} else {
		v.Set("res_pwms", "")
		v.Set("res_pwml", "")
		v.Set("res_pwmo", "")
	}

	regs, err := r.Registers()
	if err != nil {
		for _, name := range []string{"res_nbtp", "res_dbtp", "res_xbtp", "res_pcfg"} {
			v.Set(name, "")
		}
		return v, fmt.Errorf("failed to encode registers: %w", err)
	}
	v.Set("res_nbtp", fmt.Sprintf("0x%08X", regs.NBTP))
	v.Set("res_dbtp", fmt.Sprintf("0x%08X", regs.DBTP))
	v.Set("res_xbtp", fmt.Sprintf("0x%08X", regs.XBTP))
	v.Set("res_pcfg", fmt.Sprintf("0x%08X", regs.PCFG))
	return v, nil
}

// IsParameterField checks if form field name is calculator input field.
func IsParameterField(name string) bool {
	return strings.HasPrefix(name, parameterPrefix)
}

// IsResultField checks if form field name is calculator output field.
func IsResultField(name string) bool {
	return strings.HasPrefix(name, resultPrefix)
}

func formatFormFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
