// Package bittiming calculates CAN CC / CAN FD / CAN XL bit-timing settings for X_CAN family protocol controllers.
//
// All phases share one prescaler (X_CAN PRT has single BRP field in NBTP register), so calculation first searches
// prescaler that gives exact bitrate for every enabled phase and then splits each bit into segments according to
// requested sample point.
package bittiming

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aldas/go-canxl-regs"
)

var (
	// ErrNoSolution indicates that there is no prescaler that could produce requested bitrates with given clock
	ErrNoSolution = errors.New("no bit-timing solution for given parameters")
	// ErrInvalidParams indicates that calculator input is invalid (zero clock, negative bitrate etc.)
	ErrInvalidParams = errors.New("invalid bit-timing parameters")
	ErrUnknownMode   = errors.New("unknown CAN mode")
)

// Mode is CAN protocol variant used in network.
type Mode string

const (
	ModeCC Mode = "cc"
	ModeFD Mode = "fd"
	ModeXL Mode = "xl"
)

// ParseMode parses mode name. Accepts `cc`, `classic`, `fd`, `xl` (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cc", "classic", "can":
		return ModeCC, nil
	case "fd", "canfd":
		return ModeFD, nil
	case "xl", "canxl":
		return ModeXL, nil
	}
	return "", fmt.Errorf("%w: `%v`", ErrUnknownMode, s)
}

const (
	// MinTQPerBit is smallest allowed number of time quanta in one bit (sync + tseg1 + tseg2)
	MinTQPerBit = 4
	// MaxBRP is largest bitrate prescaler supported by NBTP register
	MaxBRP = 32
	// MaxTDCO is largest transmitter delay compensation offset supported by DBTP/XBTP registers
	MaxTDCO = 255
	// MaxPWM is largest PWM phase length (PWMS, PWML, PWMO) supported by PCFG register
	MaxPWM = 63

	// tdcRecommendedAbove is data phase bitrate above which transmitter delay compensation is recommended
	tdcRecommendedAbove = 1_000_000
	// tmsRecommendedAbove is XL data phase bitrate above which transceiver mode switching is recommended
	tmsRecommendedAbove = 10_000_000
	// samplePointTolerance is allowed difference in percents between requested and calculated sample point
	samplePointTolerance = 1.0
	exactTolerance       = 1e-9
)

// PhaseParams are requested settings for one bit-timing phase.
type PhaseParams struct {
	// Bitrate in bits per second. Zero disables optional (data) phases.
	Bitrate float64 `json:"bitrate"`
	// SamplePoint in percents of bit time.
	SamplePoint float64 `json:"sample_point"`
	// SJW is synchronization jump width in time quanta. Zero means as large as possible (equal to TSEG2)
	SJW int `json:"sjw"`
}

// Params is input for bit-timing calculator.
type Params struct {
	ClockHz float64 `json:"clock_hz"`
	Mode    Mode    `json:"mode"`

	Arbitration PhaseParams `json:"arbitration"`
	Data        PhaseParams `json:"data"`
	XL          PhaseParams `json:"xl"`

	// TDC enables transmitter delay compensation for data phases.
	TDC bool `json:"tdc"`
	// TransceiverModeSwitching enables PWM coding in XL data phase (CAN SIC XL transceivers).
	TransceiverModeSwitching bool `json:"tms"`

	PWMShortNs float64 `json:"pwm_short_ns"`
	PWMLongNs  float64 `json:"pwm_long_ns"`
	PWMOffset  int     `json:"pwm_offset"`
}

// DefaultParams returns calculator defaults: 80 MHz clock, CAN XL with 500 kbit/s arbitration, 2 Mbit/s FD and
// 10 Mbit/s XL data phase.
func DefaultParams() Params {
	return Params{
		ClockHz:                  80_000_000,
		Mode:                     ModeXL,
		Arbitration:              PhaseParams{Bitrate: 500_000, SamplePoint: 80},
		Data:                     PhaseParams{Bitrate: 2_000_000, SamplePoint: 80},
		XL:                       PhaseParams{Bitrate: 10_000_000, SamplePoint: 75},
		TDC:                      true,
		TransceiverModeSwitching: true,
		PWMShortNs:               25,
		PWMLongNs:                75,
		PWMOffset:                0,
	}
}

// PhaseResult is calculated bit-timing for one phase.
type PhaseResult struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	TQPerBit int    `json:"tq_per_bit"`
	TSEG1    int    `json:"tseg1"`
	TSEG2    int    `json:"tseg2"`
	SJW      int    `json:"sjw"`
	// TDCO is transmitter delay compensation offset in minimum time quanta (clock periods). Data phases only.
	TDCO        int     `json:"tdco"`
	Bitrate     float64 `json:"bitrate"`
	SamplePoint float64 `json:"sample_point"`
	BitTimeNs   float64 `json:"bit_time_ns"`
}

// Result is output of bit-timing calculator.
type Result struct {
	ClockHz float64 `json:"clock_hz"`
	Mode    Mode    `json:"mode"`
	BRP     int     `json:"brp"`
	TQNs    float64 `json:"tq_ns"`

	Arbitration PhaseResult `json:"arbitration"`
	Data        PhaseResult `json:"data"`
	XL          PhaseResult `json:"xl"`

	TDC  bool `json:"tdc"`
	TMS  bool `json:"tms"`
	PWMS int  `json:"pwms"`
	PWML int  `json:"pwml"`
	PWMO int  `json:"pwmo"`
}

type phaseLimits struct {
	maxTSEG1 int
	maxTSEG2 int
	maxSJW   int
}

func (l phaseLimits) maxTQ() int {
	return 1 + l.maxTSEG1 + l.maxTSEG2
}

var (
	nominalLimits = phaseLimits{maxTSEG1: 512, maxTSEG2: 128, maxSJW: 128}
	dataLimits    = phaseLimits{maxTSEG1: 256, maxTSEG2: 128, maxSJW: 128}
)

type phase struct {
	name   string
	params PhaseParams
	limits phaseLimits
	result *PhaseResult
	isData bool
}

// Validate checks that parameters are usable for calculation.
func (p Params) Validate() error {
	if p.ClockHz <= 0 || !isFinite(p.ClockHz) {
		return fmt.Errorf("%w: clock frequency must be positive", ErrInvalidParams)
	}
	for name, v := range map[string]float64{
		"arbitration bitrate": p.Arbitration.Bitrate, "arbitration sample point": p.Arbitration.SamplePoint,
		"fd bitrate": p.Data.Bitrate, "fd sample point": p.Data.SamplePoint,
		"xl bitrate": p.XL.Bitrate, "xl sample point": p.XL.SamplePoint,
		"PWM short phase": p.PWMShortNs, "PWM long phase": p.PWMLongNs,
	} {
		if !isFinite(v) {
			return fmt.Errorf("%w: %v must be finite number", ErrInvalidParams, name)
		}
	}
	switch p.Mode {
	case ModeCC, ModeFD, ModeXL:
	default:
		return fmt.Errorf("%w: `%v`", ErrUnknownMode, p.Mode)
	}
	if p.Arbitration.Bitrate <= 0 {
		return fmt.Errorf("%w: arbitration bitrate must be positive", ErrInvalidParams)
	}
	for _, pp := range []PhaseParams{p.Arbitration, p.Data, p.XL} {
		if pp.Bitrate < 0 {
			return fmt.Errorf("%w: bitrate can not be negative", ErrInvalidParams)
		}
		if pp.Bitrate > 0 && (pp.SamplePoint <= 0 || pp.SamplePoint >= 100) {
			return fmt.Errorf("%w: sample point must be between 0 and 100 percent, got %v", ErrInvalidParams, pp.SamplePoint)
		}
		if pp.SJW < 0 {
			return fmt.Errorf("%w: SJW can not be negative", ErrInvalidParams)
		}
	}
	if p.Mode == ModeXL && p.XL.Bitrate <= 0 {
		return fmt.Errorf("%w: XL mode requires XL data phase bitrate", ErrInvalidParams)
	}
	if p.Mode == ModeFD && p.Data.Bitrate <= 0 {
		return fmt.Errorf("%w: FD mode requires FD data phase bitrate", ErrInvalidParams)
	}
	return nil
}

// Calculate calculates bit-timing settings for given parameters. Findings contain calculated values, warnings about
// inexact results and recommendations for better configuration.
func Calculate(p Params) (Result, canxl.Findings, error) {
	if err := p.Validate(); err != nil {
		return Result{}, nil, err
	}
	findings := canxl.Findings{}
	result := Result{
		ClockHz: p.ClockHz,
		Mode:    p.Mode,
		TDC:     p.TDC && p.Mode != ModeCC,
		TMS:     p.TransceiverModeSwitching && p.Mode == ModeXL,
	}

	phases := []phase{{name: "arbitration", params: p.Arbitration, limits: nominalLimits, result: &result.Arbitration}}
	if p.Mode != ModeCC && p.Data.Bitrate > 0 {
		phases = append(phases, phase{name: "fd", params: p.Data, limits: dataLimits, result: &result.Data, isData: true})
	}
	if p.Mode == ModeXL {
		phases = append(phases, phase{name: "xl", params: p.XL, limits: dataLimits, result: &result.XL, isData: true})
	}

	brp, exact, err := findPrescaler(p.ClockHz, phases)
	if err != nil {
		return Result{}, nil, err
	}
	result.BRP = brp
	result.TQNs = float64(brp) * 1e9 / p.ClockHz
	if !exact {
		findings.Add(canxl.SeverityWarning, "", "", "no prescaler gives exact bitrate for all phases, using closest BRP %d", brp)
	}

	for _, ph := range phases {
		if err := calculatePhase(p.ClockHz, brp, ph, result.TDC, &findings); err != nil {
			return Result{}, nil, err
		}
	}

	if result.TMS {
		if err := calculatePWM(p, &result, &findings); err != nil {
			return Result{}, nil, err
		}
	}
	addRecommendations(p, result, &findings)

	return result, findings, nil
}

func findPrescaler(clockHz float64, phases []phase) (int, bool, error) {
	bestBRP := 0
	bestError := math.MaxFloat64
	for brp := 1; brp <= MaxBRP; brp++ {
		fits := true
		maxError := 0.0
		for _, ph := range phases {
			n := clockHz / (float64(brp) * ph.params.Bitrate)
			tq := int(math.Round(n))
			if tq < MinTQPerBit || tq > ph.limits.maxTQ() {
				fits = false
				break
			}
			relErr := math.Abs(n-float64(tq)) / n
			if relErr > maxError {
				maxError = relErr
			}
		}
		if !fits {
			continue
		}
		if maxError < exactTolerance {
			return brp, true, nil
		}
		if maxError < bestError {
			bestError = maxError
			bestBRP = brp
		}
	}
	if bestBRP == 0 {
		return 0, false, ErrNoSolution
	}
	return bestBRP, false, nil
}

func calculatePhase(clockHz float64, brp int, ph phase, tdc bool, findings *canxl.Findings) error {
	tqPerBit := int(math.Round(clockHz / (float64(brp) * ph.params.Bitrate)))

	tseg1 := int(math.Round(float64(tqPerBit)*ph.params.SamplePoint/100)) - 1
	if tseg1 < 1 {
		tseg1 = 1
	}
	if tseg1 > ph.limits.maxTSEG1 {
		tseg1 = ph.limits.maxTSEG1
	}
	tseg2 := tqPerBit - 1 - tseg1
	if tseg2 < 1 {
		tseg2 = 1
		tseg1 = tqPerBit - 1 - tseg2
	}
	if tseg2 > ph.limits.maxTSEG2 {
		tseg2 = ph.limits.maxTSEG2
		tseg1 = tqPerBit - 1 - tseg2
	}
	if tseg1 < 1 || tseg1 > ph.limits.maxTSEG1 {
		return fmt.Errorf("%w: %v phase can not be split into segments with %d tq per bit", ErrNoSolution, ph.name, tqPerBit)
	}

	sjw := ph.params.SJW
	if sjw == 0 {
		sjw = tseg2
	}
	if sjw > tseg2 {
		findings.Add(canxl.SeverityWarning, "", ph.name, "requested SJW %d is larger than TSEG2 %d, using %d", sjw, tseg2, tseg2)
		sjw = tseg2
	}
	if sjw > ph.limits.maxSJW {
		sjw = ph.limits.maxSJW
	}

	r := ph.result
	r.Name = ph.name
	r.Enabled = true
	r.TQPerBit = tqPerBit
	r.TSEG1 = tseg1
	r.TSEG2 = tseg2
	r.SJW = sjw
	r.Bitrate = clockHz / float64(brp*tqPerBit)
	r.SamplePoint = float64(1+tseg1) * 100 / float64(tqPerBit)
	r.BitTimeNs = 1e9 / r.Bitrate

	if ph.isData && tdc {
		tdco := brp * (1 + tseg1)
		if tdco > MaxTDCO {
			findings.Add(canxl.SeverityError, "", ph.name, "TDCO %d exceeds register maximum %d, clamped", tdco, MaxTDCO)
			tdco = MaxTDCO
		}
		r.TDCO = tdco
	}

	findings.Add(canxl.SeverityCalculation, "", ph.name,
		"%v bit/s, sample point %.1f %%, %d tq per bit (TSEG1 %d, TSEG2 %d, SJW %d)",
		formatFloat(r.Bitrate), r.SamplePoint, tqPerBit, tseg1, tseg2, sjw)

	if math.Abs(r.SamplePoint-ph.params.SamplePoint) > samplePointTolerance {
		findings.Add(canxl.SeverityWarning, "", ph.name,
			"sample point %.1f %% differs from requested %.1f %%", r.SamplePoint, ph.params.SamplePoint)
	}
	if relErr := math.Abs(r.Bitrate-ph.params.Bitrate) / ph.params.Bitrate; relErr > exactTolerance {
		findings.Add(canxl.SeverityWarning, "", ph.name,
			"bitrate %v bit/s differs from requested by %.3f %%", formatFloat(r.Bitrate), relErr*100)
	}
	return nil
}

func calculatePWM(p Params, result *Result, findings *canxl.Findings) error {
	mtqNs := 1e9 / p.ClockHz
	pwms := int(math.Round(p.PWMShortNs / mtqNs))
	pwml := int(math.Round(p.PWMLongNs / mtqNs))
	if pwms < 1 || pwms > MaxPWM || pwml < 1 || pwml > MaxPWM {
		return fmt.Errorf("%w: PWM short %d and long %d phases must be between 1 and %d clock periods", ErrNoSolution, pwms, pwml, MaxPWM)
	}
	if p.PWMOffset < 0 || p.PWMOffset > MaxPWM {
		return fmt.Errorf("%w: PWM offset must be between 0 and %d", ErrInvalidParams, MaxPWM)
	}
	result.PWMS = pwms
	result.PWML = pwml
	result.PWMO = p.PWMOffset

	symbolNs := float64(pwms+pwml) * mtqNs
	findings.Add(canxl.SeverityCalculation, "", "pwm",
		"PWM symbol %d clock periods (%.1f ns), PWMS %d, PWML %d, PWMO %d", pwms+pwml, symbolNs, pwms, pwml, p.PWMOffset)
	if result.XL.Enabled && symbolNs > result.XL.BitTimeNs {
		findings.Add(canxl.SeverityError, "", "pwm",
			"PWM symbol %.1f ns is longer than XL data bit %.1f ns", symbolNs, result.XL.BitTimeNs)
	}
	return nil
}

func addRecommendations(p Params, r Result, findings *canxl.Findings) {
	for _, ph := range []PhaseResult{r.Data, r.XL} {
		if !ph.Enabled {
			continue
		}
		if !r.TDC && ph.Bitrate > tdcRecommendedAbove {
			findings.Add(canxl.SeverityRecommendation, "", ph.Name,
				"enable transmitter delay compensation for data bitrates above 1 Mbit/s")
		}
	}
	if (r.Data.Enabled || r.XL.Enabled) && r.BRP > 2 {
		findings.Add(canxl.SeverityRecommendation, "", "",
			"use prescaler 1 or 2 for data phases to reduce quantization error, current BRP is %d", r.BRP)
	}
	if p.Mode == ModeXL && !r.TMS && r.XL.Bitrate > tmsRecommendedAbove {
		findings.Add(canxl.SeverityRecommendation, "", r.XL.Name,
			"XL data bitrates above 10 Mbit/s require transceiver mode switching (PWM coding)")
	}
	for _, ph := range []struct {
		pp PhaseParams
		pr PhaseResult
	}{{p.Arbitration, r.Arbitration}, {p.Data, r.Data}, {p.XL, r.XL}} {
		if ph.pr.Enabled && ph.pp.SJW != 0 && ph.pr.SJW < ph.pr.TSEG2 {
			findings.Add(canxl.SeverityRecommendation, "", ph.pr.Name,
				"SJW %d is smaller than TSEG2 %d, use SJW equal to TSEG2 for best oscillator tolerance", ph.pr.SJW, ph.pr.TSEG2)
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
