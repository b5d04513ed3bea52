package main

import (
	"github.com/aldas/go-canxl-regs/regmap"
	"github.com/aldas/go-canxl-regs/web"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve bit-timing calculator and register decoder web pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.Server.Listen = listen
			}
			registry, err := newRegistry(regmap.DecoderConfig{
				ClockHz:                 cfg.Decoder.ClockMHz * 1_000_000,
				DecodeReservedFields:    cfg.Decoder.DecodeReservedFields,
				DecodeLookupsToEnumType: cfg.Decoder.DecodeLookups,
				Verbose:                 cfg.Decoder.Verbose,
			}, cfg.Decoder.RegmapOverlays)
			if err != nil {
				return err
			}
			a.logger.Debug("register maps loaded", "modules", registry.Modules())

			srv := web.NewServer(web.Config{
				Listen:             cfg.Server.Listen,
				ReadTimeout:        cfg.Server.ReadTimeout.Duration,
				FragmentBaseURL:    cfg.Server.FragmentBaseURL,
				CalculatorDefaults: calculatorParams(cfg.Calculator),
			}, registry, a.logger)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("listen", "", "address to listen on (default from config, :8080)")
	return cmd
}
