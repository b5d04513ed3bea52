package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aldas/go-canxl-regs"
	"github.com/spf13/cobra"
)

func newBitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "bits VALUE END START",
		Short:   "Extract bit range END..START from register value",
		Example: "  canxl bits 0x06000A03 31 25",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseRegisterValue(args[0])
			if err != nil {
				return err
			}
			end, err := parseBitIndex(args[1])
			if err != nil {
				return fmt.Errorf("invalid end bit: %w", err)
			}
			start, err := parseBitIndex(args[2])
			if err != nil {
				return fmt.Errorf("invalid start bit: %w", err)
			}
			if err := (canxl.BitRange{End: end, Start: start}).Validate(); err != nil {
				return err
			}
			field := canxl.GetBits(value, end, start)
			fmt.Fprintf(cmd.OutOrStdout(), "%d (0x%X, 0b%b)\n", field, field, field)
			return nil
		},
	}
}

func newBinaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "binary VALUE",
		Short:   "Print register value as binary digits grouped by nibbles",
		Example: "  canxl binary 0x87654321 --width 16",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseRegisterValue(args[0])
			if err != nil {
				return err
			}
			width, err := cmd.Flags().GetInt("width")
			if err != nil {
				return fmt.Errorf("failed to get width flag: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, canxl.BitNumberLine(width))
			fmt.Fprintln(out, canxl.BinaryLine(value, width))
			return nil
		},
	}
	cmd.Flags().Int("width", canxl.RegisterWidth, "number of low bits to print (1-32)")
	return cmd
}

// parseRegisterValue parses 32 bit value. Accepts decimal and `0x`, `0b`, `0o` prefixed numbers with `_` separators.
func parseRegisterValue(raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid register value `%v`: %w", raw, err)
	}
	return uint32(v), nil
}

func parseBitIndex(raw string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
	if err != nil {
		return 0, err
	}
	if v >= canxl.RegisterWidth {
		return 0, fmt.Errorf("bit %d is outside of 32 bit register", v)
	}
	return uint8(v), nil
}
