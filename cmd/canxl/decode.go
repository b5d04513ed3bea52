package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/dump"
	"github.com/aldas/go-canxl-regs/internal/config"
	"github.com/aldas/go-canxl-regs/internal/ctxlog"
	"github.com/aldas/go-canxl-regs/regmap"
	"github.com/spf13/cobra"
	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

const stdinName = "-"

type decodeOptions struct {
	variant  string
	block    string
	clockMHz float64
	format   string
	binary   bool
	verbose  bool
	reserved bool
	overlays []string
	device   string
	baud     int
}

func newDecodeCmd(a *app) *cobra.Command {
	opts := decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode [flags] [dump files...]",
		Short: "Decode register dump files, stdin or serial console output",
		Long: `Decode register dump of one variant sub-block. Dump lines are "ADDRESS VALUE" pairs in hex or
"NAME VALUE" pairs where NAME is register name. Without files dump is read from stdin.`,
		Example: "  canxl decode --variant X_CAN --block PRT --clock 80 prt.txt\n" +
			"  canxl decode --block MH --device /dev/ttyUSB0 --format json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("clock") {
				opts.clockMHz = a.config.Decoder.ClockMHz
			}
			if !cmd.Flags().Changed("baud") {
				opts.baud = a.config.Serial.Baud
			}
			if opts.device == "" {
				opts.device = a.config.Serial.Device
			}
			opts.verbose = opts.verbose || a.config.Decoder.Verbose
			opts.reserved = opts.reserved || a.config.Decoder.DecodeReservedFields
			opts.overlays = append(append([]string{}, a.config.Decoder.RegmapOverlays...), opts.overlays...)
			return runDecode(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), a.config, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.variant, "variant", string(canxl.VariantXCAN), "CAN IP variant (X_CAN|XS_CAN|X_CANB)")
	cmd.Flags().StringVar(&opts.block, "block", string(canxl.BlockPRT), "variant sub-block (MH|PRT|IRC)")
	cmd.Flags().Float64Var(&opts.clockMHz, "clock", 0, "CAN clock frequency in MHz, used to calculate bitrates")
	cmd.Flags().StringVar(&opts.format, "format", formatText, "output format (text|json|msgpack|csv)")
	cmd.Flags().BoolVar(&opts.binary, "binary", false, "print registers with bit numbers instead of table (text format)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "add verbose findings (reset value differences, duplicate addresses)")
	cmd.Flags().BoolVar(&opts.reserved, "reserved", false, "decode bits not covered by any field as RESERVED field")
	cmd.Flags().StringSliceVar(&opts.overlays, "overlay", nil, "HCL register map overlay file (can be repeated)")
	cmd.Flags().StringVar(&opts.device, "device", "", "serial device to read register dump from, e.g. /dev/ttyUSB0")
	cmd.Flags().IntVar(&opts.baud, "baud", 115200, "serial device baud rate")
	return cmd
}

// newRegistry creates decoders for all embedded register maps with overlays from given HCL files merged in.
func newRegistry(config regmap.DecoderConfig, overlayPaths []string) (*regmap.Registry, error) {
	overlays := make([]regmap.Overlay, 0, len(overlayPaths))
	for _, p := range overlayPaths {
		o, err := regmap.LoadOverlay(p)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, o)
	}
	return regmap.NewRegistry(config, overlays...)
}

func runDecode(ctx context.Context, out io.Writer, in io.Reader, cfg config.Config, opts decodeOptions, files []string) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	variant, err := canxl.ParseVariant(opts.variant)
	if err != nil {
		return err
	}
	block, err := canxl.ParseBlock(opts.block)
	if err != nil {
		return err
	}
	registry, err := newRegistry(regmap.DecoderConfig{
		ClockHz:                 opts.clockMHz * 1_000_000,
		DecodeReservedFields:    opts.reserved,
		DecodeLookupsToEnumType: cfg.Decoder.DecodeLookups,
		Verbose:                 opts.verbose,
	}, opts.overlays)
	if err != nil {
		return err
	}
	decoder, err := registry.Decoder(variant, block)
	if err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx)
	isText := opts.format == formatText

	if opts.device != "" {
		if isText {
			fmt.Fprintf(out, "# Reading register dump from serial device: %v\n", opts.device)
		}
		port, err := serial.OpenPort(&serial.Config{
			Name: opts.device,
			Baud: opts.baud,
			// dump ends when device has been silent for read timeout
			ReadTimeout: cfg.Serial.ReadTimeout.Duration,
			Size:        8,
		})
		if err != nil {
			return fmt.Errorf("failed to open serial device: %w", err)
		}
		// blocked read returns when port is closed on interrupt
		stop := context.AfterFunc(ctx, func() { _ = port.Close() })
		defer stop()
		report, err := decodeSource(ctx, decoder, port)
		if err != nil {
			return fmt.Errorf("%v: %w", opts.device, err)
		}
		return writeReport(out, opts.format, report, opts.binary)
	}

	if len(files) == 0 {
		files = []string{stdinName}
	}
	reports := make([]canxl.Report, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, name := range files {
		g.Go(func() error {
			src, err := openDump(name, in)
			if err != nil {
				return err
			}
			report, err := decodeSource(gCtx, decoder, src)
			if err != nil {
				return fmt.Errorf("%v: %w", name, err)
			}
			logger.Debug("dump decoded", "file", name, "registers", len(report.Registers), "findings", len(report.Findings))
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, report := range reports {
		if isText && len(files) > 1 {
			fmt.Fprintf(out, "# File: %v\n", files[i])
		}
		if err := writeReport(out, opts.format, report, opts.binary); err != nil {
			return err
		}
	}
	return nil
}

func openDump(name string, stdin io.Reader) (io.Reader, error) {
	if name == stdinName {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump file: %w", err)
	}
	return f, nil
}

// decodeSource reads all register values from source and decodes them. Source is closed when it is io.Closer.
func decodeSource(ctx context.Context, decoder *regmap.Decoder, src io.Reader) (canxl.Report, error) {
	reader := dump.NewReader(src, decoder)
	defer reader.Close()

	values, err := dump.ReadAll(ctx, reader)
	if err != nil {
		return canxl.Report{}, err
	}
	return decoder.Decode(values)
}
