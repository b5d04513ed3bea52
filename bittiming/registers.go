package bittiming

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/aldas/go-canxl-regs"
)

// PhaseLayout describes where bit-timing fields are located in phase register. Nil range means that register
// does not have that field.
type PhaseLayout struct {
	BRP   *canxl.BitRange
	TDCO  *canxl.BitRange
	TSEG1 *canxl.BitRange
	TSEG2 *canxl.BitRange
	SJW   *canxl.BitRange
}

var (
	// NBTPLayout is nominal (arbitration) bit-timing register layout of X_CAN PRT.
	NBTPLayout = PhaseLayout{
		BRP:   &canxl.BitRange{End: 29, Start: 25},
		TSEG1: &canxl.BitRange{End: 24, Start: 16},
		TSEG2: &canxl.BitRange{End: 14, Start: 8},
		SJW:   &canxl.BitRange{End: 6, Start: 0},
	}
	// DBTPLayout is FD data phase bit-timing register layout of X_CAN PRT.
	DBTPLayout = PhaseLayout{
		TDCO:  &canxl.BitRange{End: 31, Start: 24},
		TSEG1: &canxl.BitRange{End: 23, Start: 16},
		TSEG2: &canxl.BitRange{End: 14, Start: 8},
		SJW:   &canxl.BitRange{End: 6, Start: 0},
	}
	// XBTPLayout is XL data phase bit-timing register layout of X_CAN PRT.
	XBTPLayout = DBTPLayout
)

var (
	PCFGPWMO = canxl.BitRange{End: 21, Start: 16}
	PCFGPWML = canxl.BitRange{End: 13, Start: 8}
	PCFGPWMS = canxl.BitRange{End: 5, Start: 0}
)

// Registers are PRT register values for calculated bit-timing.
type Registers struct {
	NBTP uint32 `json:"nbtp"`
	DBTP uint32 `json:"dbtp"`
	XBTP uint32 `json:"xbtp"`
	PCFG uint32 `json:"pcfg"`
}

// Registers encodes result into PRT register values. BRP, TSEG1, TSEG2 and SJW are stored as value minus one,
// TDCO and PWM fields as is.
func (r Result) Registers() (Registers, error) {
	regs := Registers{}
	var err error
	if regs.NBTP, err = encodePhase(r.Arbitration, r.BRP, NBTPLayout); err != nil {
		return Registers{}, fmt.Errorf("NBTP: %w", err)
	}
	if r.Data.Enabled {
		if regs.DBTP, err = encodePhase(r.Data, 0, DBTPLayout); err != nil {
			return Registers{}, fmt.Errorf("DBTP: %w", err)
		}
	}
	if r.XL.Enabled {
		if regs.XBTP, err = encodePhase(r.XL, 0, XBTPLayout); err != nil {
			return Registers{}, fmt.Errorf("XBTP: %w", err)
		}
	}
	if r.TMS {
		for _, f := range []struct {
			r canxl.BitRange
			v int
		}{{PCFGPWMO, r.PWMO}, {PCFGPWML, r.PWML}, {PCFGPWMS, r.PWMS}} {
			v, err := encodeField(f.v, f.r, false)
			if err != nil {
				return Registers{}, fmt.Errorf("PCFG: %w", err)
			}
			regs.PCFG = f.r.Insert(regs.PCFG, v)
		}
	}
	return regs, nil
}

func encodePhase(p PhaseResult, brp int, layout PhaseLayout) (uint32, error) {
	fields := []struct {
		name     string
		r        *canxl.BitRange
		v        int
		minusOne bool
	}{
		{"BRP", layout.BRP, brp, true},
		{"TDCO", layout.TDCO, p.TDCO, false},
		{"TSEG1", layout.TSEG1, p.TSEG1, true},
		{"TSEG2", layout.TSEG2, p.TSEG2, true},
		{"SJW", layout.SJW, p.SJW, true},
	}
	var reg uint32
	for _, f := range fields {
		if f.r == nil {
			continue
		}
		v, err := encodeField(f.v, *f.r, f.minusOne)
		if err != nil {
			return 0, fmt.Errorf("%v: %w", f.name, err)
		}
		reg = f.r.Insert(reg, v)
	}
	return reg, nil
}

func encodeField(value int, r canxl.BitRange, minusOne bool) (uint32, error) {
	if minusOne {
		value--
	}
	v, err := safecast.Conv[uint32](value)
	if err != nil {
		return 0, fmt.Errorf("value %d can not be stored in register: %w", value, err)
	}
	if v > r.MaxValue() {
		return 0, fmt.Errorf("value %d does not fit into %v", value, r)
	}
	return v, nil
}

// DecodePhase converts phase register value back to bit-timing. For registers without BRP field (DBTP, XBTP) brp
// from NBTP must be given.
func DecodePhase(clockHz float64, brp int, reg uint32, layout PhaseLayout) PhaseResult {
	if layout.BRP != nil {
		brp = int(layout.BRP.Extract(reg)) + 1
	}
	if brp < 1 {
		brp = 1
	}
	r := PhaseResult{
		Enabled: true,
		TSEG1:   int(layout.TSEG1.Extract(reg)) + 1,
		TSEG2:   int(layout.TSEG2.Extract(reg)) + 1,
		SJW:     int(layout.SJW.Extract(reg)) + 1,
	}
	if layout.TDCO != nil {
		r.TDCO = int(layout.TDCO.Extract(reg))
	}
	r.TQPerBit = 1 + r.TSEG1 + r.TSEG2
	if clockHz > 0 {
		r.Bitrate = clockHz / float64(brp*r.TQPerBit)
		r.BitTimeNs = 1e9 / r.Bitrate
	}
	r.SamplePoint = float64(1+r.TSEG1) * 100 / float64(r.TQPerBit)
	return r
}

// DecodeRegisters converts PRT register values back to bit-timing result. Data phases are decoded only when
// mode enables them.
func DecodeRegisters(clockHz float64, mode Mode, regs Registers) Result {
	brp := int(NBTPLayout.BRP.Extract(regs.NBTP)) + 1
	r := Result{
		ClockHz:     clockHz,
		Mode:        mode,
		BRP:         brp,
		Arbitration: DecodePhase(clockHz, brp, regs.NBTP, NBTPLayout),
	}
	r.Arbitration.Name = "arbitration"
	if clockHz > 0 {
		r.TQNs = float64(brp) * 1e9 / clockHz
	}
	if mode == ModeFD || mode == ModeXL {
		r.Data = DecodePhase(clockHz, brp, regs.DBTP, DBTPLayout)
		r.Data.Name = "fd"
		r.TDC = r.Data.TDCO > 0
	}
	if mode == ModeXL {
		r.XL = DecodePhase(clockHz, brp, regs.XBTP, XBTPLayout)
		r.XL.Name = "xl"
		r.PWMO = int(PCFGPWMO.Extract(regs.PCFG))
		r.PWML = int(PCFGPWML.Extract(regs.PCFG))
		r.PWMS = int(PCFGPWMS.Extract(regs.PCFG))
		r.TMS = r.PWML > 0 || r.PWMS > 0
	}
	return r
}
