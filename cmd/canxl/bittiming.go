package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/bittiming"
	"github.com/aldas/go-canxl-regs/internal/config"
	"github.com/spf13/cobra"
)

// calculatorParams converts configured calculator defaults (MHz, kbit/s) to calculator parameters.
func calculatorParams(c config.CalculatorConfig) bittiming.Params {
	p := bittiming.DefaultParams()
	p.ClockHz = c.ClockMHz * 1_000_000
	p.Arbitration.Bitrate = c.BitrateArb * 1_000
	p.Arbitration.SamplePoint = c.SPArb
	p.Data.Bitrate = c.BitrateFD * 1_000
	p.Data.SamplePoint = c.SPFD
	p.XL.Bitrate = c.BitrateXL * 1_000
	p.XL.SamplePoint = c.SPXL
	return p
}

type bitTimingOptions struct {
	clockMHz   float64
	mode       string
	arb        float64
	spArb      float64
	sjwArb     int
	fd         float64
	spFD       float64
	sjwFD      int
	xl         float64
	spXL       float64
	sjwXL      int
	tdc        bool
	tms        bool
	pwmShortNs float64
	pwmLongNs  float64
	pwmOffset  int
	format     string
}

func newBitTimingCmd(a *app) *cobra.Command {
	opts := bitTimingOptions{}
	cmd := &cobra.Command{
		Use:     "bittiming",
		Short:   "Calculate NBTP, DBTP, XBTP and PCFG register values for given bitrates",
		Example: "  canxl bittiming --clock 80 --mode xl --arb 500 --fd 2000 --xl 10000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := calculatorParams(a.config.Calculator)
			flags := cmd.Flags()
			// config values are used for flags user did not set
			for name, apply := range map[string]func(){
				"clock":  func() { p.ClockHz = opts.clockMHz * 1_000_000 },
				"arb":    func() { p.Arbitration.Bitrate = opts.arb * 1_000 },
				"sp-arb": func() { p.Arbitration.SamplePoint = opts.spArb },
				"fd":     func() { p.Data.Bitrate = opts.fd * 1_000 },
				"sp-fd":  func() { p.Data.SamplePoint = opts.spFD },
				"xl":     func() { p.XL.Bitrate = opts.xl * 1_000 },
				"sp-xl":  func() { p.XL.SamplePoint = opts.spXL },
			} {
				if flags.Changed(name) {
					apply()
				}
			}
			mode, err := bittiming.ParseMode(opts.mode)
			if err != nil {
				return err
			}
			p.Mode = mode
			p.Arbitration.SJW = opts.sjwArb
			p.Data.SJW = opts.sjwFD
			p.XL.SJW = opts.sjwXL
			p.TDC = opts.tdc
			p.TransceiverModeSwitching = opts.tms
			p.PWMShortNs = opts.pwmShortNs
			p.PWMLongNs = opts.pwmLongNs
			p.PWMOffset = opts.pwmOffset

			return runBitTiming(cmd.OutOrStdout(), p, opts.format)
		},
	}
	d := bittiming.DefaultParams()
	flags := cmd.Flags()
	flags.Float64Var(&opts.clockMHz, "clock", d.ClockHz/1_000_000, "CAN clock frequency in MHz")
	flags.StringVar(&opts.mode, "mode", string(d.Mode), "CAN mode (cc|fd|xl)")
	flags.Float64Var(&opts.arb, "arb", d.Arbitration.Bitrate/1_000, "arbitration phase bitrate in kbit/s")
	flags.Float64Var(&opts.spArb, "sp-arb", d.Arbitration.SamplePoint, "arbitration phase sample point in percent")
	flags.IntVar(&opts.sjwArb, "sjw-arb", 0, "arbitration phase SJW in time quanta (0 = TSEG2)")
	flags.Float64Var(&opts.fd, "fd", d.Data.Bitrate/1_000, "FD data phase bitrate in kbit/s")
	flags.Float64Var(&opts.spFD, "sp-fd", d.Data.SamplePoint, "FD data phase sample point in percent")
	flags.IntVar(&opts.sjwFD, "sjw-fd", 0, "FD data phase SJW in time quanta (0 = TSEG2)")
	flags.Float64Var(&opts.xl, "xl", d.XL.Bitrate/1_000, "XL data phase bitrate in kbit/s")
	flags.Float64Var(&opts.spXL, "sp-xl", d.XL.SamplePoint, "XL data phase sample point in percent")
	flags.IntVar(&opts.sjwXL, "sjw-xl", 0, "XL data phase SJW in time quanta (0 = TSEG2)")
	flags.BoolVar(&opts.tdc, "tdc", d.TDC, "enable transmitter delay compensation")
	flags.BoolVar(&opts.tms, "tms", d.TransceiverModeSwitching, "enable transceiver mode switching (PWM coding) in XL data phase")
	flags.Float64Var(&opts.pwmShortNs, "pwm-short", d.PWMShortNs, "PWM short phase in ns")
	flags.Float64Var(&opts.pwmLongNs, "pwm-long", d.PWMLongNs, "PWM long phase in ns")
	flags.IntVar(&opts.pwmOffset, "pwm-offset", d.PWMOffset, "PWM offset in clock periods")
	flags.StringVar(&opts.format, "format", formatText, "output format (text|json)")
	return cmd
}

type bitTimingOutput struct {
	Result    bittiming.Result    `json:"result"`
	Registers bittiming.Registers `json:"registers"`
	Findings  canxl.Findings      `json:"findings"`
}

func runBitTiming(w io.Writer, p bittiming.Params, format string) error {
	if format != formatText && format != formatJSON {
		return fmt.Errorf("unknown output format: `%v`", format)
	}
	result, findings, err := bittiming.Calculate(p)
	if err != nil {
		return err
	}
	regs, err := result.Registers()
	if err != nil {
		return err
	}
	if format == formatJSON {
		return json.NewEncoder(w).Encode(bitTimingOutput{Result: result, Registers: regs, Findings: findings})
	}

	fmt.Fprintf(w, "# Clock %v MHz, BRP %d, time quantum %v ns\n",
		strconv.FormatFloat(result.ClockHz/1_000_000, 'f', -1, 64), result.BRP, strconv.FormatFloat(result.TQNs, 'f', -1, 64))
	t := newTable("PHASE", "BITRATE", "SAMPLE POINT", "TQ/BIT", "TSEG1", "TSEG2", "SJW", "TDCO")
	for _, ph := range []bittiming.PhaseResult{result.Arbitration, result.Data, result.XL} {
		if !ph.Enabled {
			continue
		}
		tdco := ""
		if ph.Name != "arbitration" && result.TDC {
			tdco = strconv.Itoa(ph.TDCO)
		}
		t.Row(
			ph.Name,
			strconv.FormatFloat(ph.Bitrate/1_000, 'f', -1, 64)+" kbit/s",
			strconv.FormatFloat(ph.SamplePoint, 'f', 1, 64)+" %",
			strconv.Itoa(ph.TQPerBit),
			strconv.Itoa(ph.TSEG1),
			strconv.Itoa(ph.TSEG2),
			strconv.Itoa(ph.SJW),
			tdco,
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "NBTP = 0x%08X\nDBTP = 0x%08X\nXBTP = 0x%08X\nPCFG = 0x%08X\n", regs.NBTP, regs.DBTP, regs.XBTP, regs.PCFG)
	writeFindings(w, findings)
	return nil
}
