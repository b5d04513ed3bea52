package regmap

import (
	"fmt"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/bittiming"
)

const (
	// endiannessTestValue is fixed value of PRT ENDN register
	endiannessTestValue = 0x87654321
	// errorWarningLimit is error counter value above which CAN controller reports error warning
	errorWarningLimit = 96
)

type check func(c *checkContext)

type checkContext struct {
	report *canxl.Report
	config DecoderConfig
	schema Schema
}

func (c *checkContext) register(name string) (canxl.DecodedRegister, bool) {
	return c.report.FindRegister(name)
}

// field returns field value of decoded register. ok is false when register or field is missing from dump.
func (c *checkContext) field(register string, field string) (uint32, bool) {
	r, ok := c.report.FindRegister(register)
	if !ok {
		return 0, false
	}
	f, ok := r.FindField(field)
	if !ok {
		return 0, false
	}
	return f.Value, true
}

func (c *checkContext) flag(register string, field string) bool {
	v, ok := c.field(register, field)
	return ok && v != 0
}

func (c *checkContext) add(sev canxl.Severity, register string, field string, format string, args ...interface{}) {
	c.report.Findings.Add(sev, register, field, format, args...)
}

func blockChecks(block canxl.Block) []check {
	switch block {
	case canxl.BlockPRT:
		return []check{checkEndianness, checkRelease, checkStatus, checkEvents, checkBitTiming}
	case canxl.BlockMH:
		return []check{checkMHVersion, checkMHStatus, checkMHSafety}
	case canxl.BlockIRC:
		return []check{checkIRCErrors, checkIRCSafety, checkIRCFunctional}
	}
	return nil
}

func checkEndianness(c *checkContext) {
	r, ok := c.register("ENDN")
	if !ok || r.Value == endiannessTestValue {
		return
	}
	if r.Value == swapBytes(endiannessTestValue) {
		c.add(canxl.SeverityError, r.Name, "", "endianness test value has swapped byte order (0x%08X), dump was read with wrong endianness", r.Value)
		return
	}
	c.add(canxl.SeverityError, r.Name, "", "endianness test value is 0x%08X, expected 0x%08X", r.Value, uint32(endiannessTestValue))
}

func swapBytes(v uint32) uint32 {
	return v>>24 | (v>>8)&0xFF00 | (v<<8)&0xFF0000 | v<<24
}

// release registers (PRT PREL, MH VERSION) share the same layout: REL.STEP.SUBSTEP and BCD coded date
func describeRelease(c *checkContext, register string, what string) {
	r, ok := c.register(register)
	if !ok {
		return
	}
	rel, _ := c.field(register, "REL")
	step, _ := c.field(register, "STEP")
	subStep, _ := c.field(register, "SUBSTEP")
	year, _ := c.field(register, "YEAR")
	month, _ := c.field(register, "MON")
	day, _ := c.field(register, "DAY")

	m, okM := fromBCD(month)
	d, okD := fromBCD(day)
	if !okM || !okD || m < 1 || m > 12 || d < 1 || d > 31 {
		c.add(canxl.SeverityWarning, r.Name, "", "%v release date is not valid BCD (MON=0x%02X, DAY=0x%02X)", what, month, day)
		c.add(canxl.SeverityInfoHighlighted, r.Name, "", "%v release %d.%d.%d", what, rel, step, subStep)
		return
	}
	c.add(canxl.SeverityInfoHighlighted, r.Name, "", "%v release %d.%d.%d from %d-%02d-%02d",
		what, rel, step, subStep, 2020+year, m, d)
}

// fromBCD converts binary coded decimal value to integer. ok is false when any nibble is above 9.
func fromBCD(v uint32) (uint32, bool) {
	result := uint32(0)
	multiplier := uint32(1)
	for v > 0 {
		digit := v & 0xF
		if digit > 9 {
			return 0, false
		}
		result += digit * multiplier
		multiplier *= 10
		v >>= 4
	}
	return result, true
}

func checkRelease(c *checkContext) {
	describeRelease(c, "PREL", "protocol controller")
}

func checkStatus(c *checkContext) {
	r, ok := c.register("STAT")
	if !ok {
		return
	}
	if c.flag(r.Name, "BO") {
		c.add(canxl.SeverityError, r.Name, "BO", "protocol controller is in bus off state")
	} else if c.flag(r.Name, "EP") {
		c.add(canxl.SeverityWarning, r.Name, "EP", "protocol controller is error passive")
	}
	for _, counter := range []string{"TEC", "REC"} {
		if v, ok := c.field(r.Name, counter); ok && v > errorWarningLimit {
			c.add(canxl.SeverityWarning, r.Name, counter, "error counter %d is above warning limit %d", v, errorWarningLimit)
		}
	}
	if c.flag(r.Name, "STP") {
		c.add(canxl.SeverityInfoHighlighted, r.Name, "STP", "protocol controller is stopped")
	}
	if c.flag(r.Name, "FIMA") {
		c.add(canxl.SeverityWarning, r.Name, "FIMA", "fault injection module is active")
	}
}

var protocolErrorEvents = []string{"CRE", "B0E", "B1E", "AKE", "FRE", "STE"}

func checkEvents(c *checkContext) {
	r, ok := c.register("EVNT")
	if !ok {
		return
	}
	for _, name := range protocolErrorEvents {
		if !c.flag(r.Name, name) {
			continue
		}
		desc := name
		if f, ok := r.FindField(name); ok && f.Description != "" {
			desc = f.Description
		}
		c.add(canxl.SeverityWarning, r.Name, name, "%v event is pending", desc)
	}
	for _, name := range []string{"DO", "DU", "PXE"} {
		if c.flag(r.Name, name) {
			c.add(canxl.SeverityError, r.Name, name, "%v event is pending", name)
		}
	}
}

// checkBitTiming converts NBTP, DBTP, XBTP and PCFG register values to bitrates and sample points.
func checkBitTiming(c *checkContext) {
	nbtp, ok := c.register("NBTP")
	if !ok {
		return
	}
	mode := bittiming.ModeCC
	_, hasMode := c.register("MODE")
	dbtp, hasDBTP := c.register("DBTP")
	xbtp, hasXBTP := c.register("XBTP")
	switch {
	case hasMode && c.flag("MODE", "XLOE"):
		mode = bittiming.ModeXL
	case hasMode && c.flag("MODE", "FDOE"):
		mode = bittiming.ModeFD
	case !hasMode && hasXBTP:
		mode = bittiming.ModeXL
	case !hasMode && hasDBTP:
		mode = bittiming.ModeFD
	}

	regs := bittiming.Registers{NBTP: nbtp.Value, DBTP: dbtp.Value, XBTP: xbtp.Value}
	if pcfg, ok := c.register("PCFG"); ok {
		regs.PCFG = pcfg.Value
	}
	result := bittiming.DecodeRegisters(c.config.ClockHz, mode, regs)

	c.addPhase("NBTP", result.Arbitration, result.BRP)
	if result.Data.Enabled && hasDBTP {
		c.addPhase("DBTP", result.Data, result.BRP)
	}
	if result.XL.Enabled && hasXBTP {
		c.addPhase("XBTP", result.XL, result.BRP)
	}
	if c.config.ClockHz == 0 {
		c.add(canxl.SeverityInfo, "", "", "CAN clock frequency is not set, bitrates are not calculated")
	}

	tdcEnabled := c.flag("MODE", "TDCE")
	for _, ph := range []struct {
		register string
		result   bittiming.PhaseResult
		present  bool
	}{{"DBTP", result.Data, hasDBTP}, {"XBTP", result.XL, hasXBTP}} {
		if !ph.present || !ph.result.Enabled {
			continue
		}
		if hasMode && !tdcEnabled && ph.result.Bitrate > 1_000_000 {
			c.add(canxl.SeverityRecommendation, "MODE", "TDCE",
				"enable transmitter delay compensation, %v data bitrate %v is above 1 Mbit/s", ph.register, formatBitrate(ph.result.Bitrate))
		}
		if tdcEnabled && ph.result.TDCO == 0 {
			c.add(canxl.SeverityWarning, ph.register, ph.register[:1]+"TDCO",
				"transmitter delay compensation is enabled but offset is 0")
		}
	}
	if mode == bittiming.ModeXL && hasXBTP && result.XL.Bitrate > 10_000_000 && !c.flag("MODE", "XLTR") {
		c.add(canxl.SeverityRecommendation, "MODE", "XLTR",
			"XL data bitrate %v requires transceiver mode switching (PWM coding)", formatBitrate(result.XL.Bitrate))
	}
	if mode == bittiming.ModeXL && c.flag("MODE", "XLTR") {
		c.add(canxl.SeverityCalculation, "PCFG", "", "PWM symbol PWMS %d + PWML %d clock periods, PWMO %d",
			result.PWMS, result.PWML, result.PWMO)
		if result.PWMS == 0 || result.PWML == 0 {
			c.add(canxl.SeverityError, "PCFG", "", "transceiver mode switching is enabled but PWM phases are not configured")
		}
	}
}

func (c *checkContext) addPhase(register string, ph bittiming.PhaseResult, brp int) {
	if ph.Bitrate > 0 {
		c.add(canxl.SeverityCalculation, register, "",
			"%v phase: bitrate %v, sample point %.1f %%, %d tq per bit (BRP %d), TSEG1 %d, TSEG2 %d, SJW %d",
			ph.Name, formatBitrate(ph.Bitrate), ph.SamplePoint, ph.TQPerBit, brp, ph.TSEG1, ph.TSEG2, ph.SJW)
	} else {
		c.add(canxl.SeverityCalculation, register, "",
			"%v phase: sample point %.1f %%, %d tq per bit (BRP %d), TSEG1 %d, TSEG2 %d, SJW %d",
			ph.Name, ph.SamplePoint, ph.TQPerBit, brp, ph.TSEG1, ph.TSEG2, ph.SJW)
	}
	if ph.SJW > ph.TSEG2 {
		c.add(canxl.SeverityWarning, register, "", "SJW %d is larger than TSEG2 %d", ph.SJW, ph.TSEG2)
	}
	if ph.TQPerBit < bittiming.MinTQPerBit {
		c.add(canxl.SeverityError, register, "", "bit has %d time quanta, at least %d are needed", ph.TQPerBit, bittiming.MinTQPerBit)
	}
}

func formatBitrate(bps float64) string {
	switch {
	case bps >= 1_000_000:
		return fmt.Sprintf("%.3g Mbit/s", bps/1_000_000)
	case bps >= 1_000:
		return fmt.Sprintf("%.4g kbit/s", bps/1_000)
	}
	return fmt.Sprintf("%.0f bit/s", bps)
}

func checkMHVersion(c *checkContext) {
	describeRelease(c, "VERSION", "message handler")
}

var mhStatusErrors = []string{"DMA_ERR", "MEM_ERR", "AXI_ERR"}

func checkMHStatus(c *checkContext) {
	r, ok := c.register("MH_STS")
	if !ok {
		return
	}
	for _, name := range mhStatusErrors {
		if c.flag(r.Name, name) {
			c.add(canxl.SeverityError, r.Name, name, "message handler reports %v", describeField(r, name))
		}
	}
	if _, ok := c.register("MH_CTRL"); ok && !c.flag("MH_CTRL", "START") {
		c.add(canxl.SeverityInfoHighlighted, "MH_CTRL", "START", "message handler is not started")
	}
}

func checkMHSafety(c *checkContext) {
	r, ok := c.register("MH_SFTY_CTRL")
	if !ok {
		return
	}
	if r.Value == 0 {
		c.add(canxl.SeverityRecommendation, r.Name, "", "enable descriptor CRC checks and memory protection for functional safety")
	}
}

func checkIRCErrors(c *checkContext) {
	r, ok := c.register("ERR_RAW")
	if !ok {
		return
	}
	enabled, hasEnable := c.register("ERR_ENA")
	for _, f := range r.Fields {
		if f.Value == 0 {
			continue
		}
		c.add(canxl.SeverityWarning, r.Name, f.Name, "error interrupt %v is pending", describeField(r, f.Name))
		if hasEnable && enabled.Value&f.Range.Mask() != 0 {
			c.add(canxl.SeverityInfoHighlighted, r.Name, f.Name, "error interrupt is pending and enabled")
		}
	}
}

func checkIRCSafety(c *checkContext) {
	r, ok := c.register("SAFETY_RAW")
	if !ok {
		return
	}
	enabled, hasEnable := c.register("SAFETY_ENA")
	for _, f := range r.Fields {
		if f.Value == 0 {
			continue
		}
		c.add(canxl.SeverityError, r.Name, f.Name, "safety interrupt %v is pending", describeField(r, f.Name))
		if hasEnable && enabled.Value&f.Range.Mask() != 0 {
			c.add(canxl.SeverityInfoHighlighted, r.Name, f.Name, "safety interrupt is pending and enabled")
		}
	}
}

func checkIRCFunctional(c *checkContext) {
	r, ok := c.register("FUNC_RAW")
	if !ok {
		return
	}
	enabled, hasEnable := c.register("FUNC_ENA")
	if !hasEnable {
		return
	}
	for _, f := range r.Fields {
		if f.Value != 0 && enabled.Value&f.Range.Mask() != 0 {
			c.add(canxl.SeverityInfoHighlighted, r.Name, f.Name, "functional interrupt is pending and enabled (value 0x%X)", f.Value)
		}
	}
}

func describeField(r canxl.DecodedRegister, name string) string {
	f, ok := r.FindField(name)
	if !ok || f.Description == "" {
		return name
	}
	return fmt.Sprintf("%v (%v)", name, f.Description)
}
