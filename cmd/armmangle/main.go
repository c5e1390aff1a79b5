package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"armcache/mangle/internal/armir"
	"armcache/mangle/internal/fixture"
	"armcache/mangle/internal/mangle"
)

func main() {
	var stolenStr string
	var iblTargetStr string
	var numRegParm int
	var showStats bool

	rootCmd := &cobra.Command{
		Use:   "armmangle",
		Short: "ARM/Thumb instruction-stream mangler over built-in fixtures",
	}
	rootCmd.PersistentFlags().StringVar(&stolenStr, "stolen-reg", "r10", "stolen register (r8-r12)")
	rootCmd.PersistentFlags().StringVar(&iblTargetStr, "ibl-target-reg", "r1", "indirect-branch-lookup target register (r0-r3)")
	rootCmd.PersistentFlags().IntVar(&numRegParm, "num-reg-parm", 4, "argument registers available to clean calls")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "print mangling counters after running")

	newConfig := func() (*armir.Config, error) {
		stolen, err := parseReg(stolenStr)
		if err != nil {
			return nil, fmt.Errorf("--stolen-reg: %w", err)
		}
		iblTarget, err := parseReg(iblTargetStr)
		if err != nil {
			return nil, fmt.Errorf("--ibl-target-reg: %w", err)
		}
		cfg, err := armir.NewConfig(stolen, iblTarget, numRegParm)
		if err != nil {
			return nil, err
		}
		cfg.Stats = &armir.Stats{}
		return cfg, nil
	}

	mangleCmd := &cobra.Command{
		Use:   "mangle <fixture>",
		Short: "run the full mangling dispatch over a named fixture and print before/after listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := lookupFixture(args[0])
			if err != nil {
				return err
			}
			cfg, err := newConfig()
			if err != nil {
				return err
			}

			var before bytes.Buffer
			armir.Disassemble(&before, prog.List)
			fmt.Printf("=== %s (before) ===\n%s\n", prog.Name, before.String())

			col := toyCollaborators(prog)
			if err := mangle.Dispatch(prog.List, cfg, col); err != nil {
				return fmt.Errorf("mangle %s: %w", prog.Name, err)
			}

			var after bytes.Buffer
			armir.Disassemble(&after, prog.List)
			fmt.Printf("=== %s (after) ===\n%s\n", prog.Name, after.String())

			if showStats {
				printStats(cfg.Stats)
			}
			return nil
		},
	}

	itblocksCmd := &cobra.Command{
		Use:   "itblocks <fixture>",
		Short: "exercise IT-block splitting and reinstatement over a named fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := lookupFixture(args[0])
			if err != nil {
				return err
			}
			cfg, err := newConfig()
			if err != nil {
				return err
			}

			start := prog.List.First()
			if start == nil {
				return fmt.Errorf("fixture %s is empty", prog.Name)
			}
			inserted := mangle.ReinstateITBlocks(prog.List, start, nil)
			fmt.Printf("%s: reinstated %d IT block(s)\n", prog.Name, inserted)

			var after bytes.Buffer
			armir.Disassemble(&after, prog.List)
			fmt.Print(after.String())

			if showStats {
				printStats(cfg.Stats)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list the names of every built-in fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range fixture.All() {
				fmt.Println(p.Name)
			}
			return nil
		},
	}

	rootCmd.AddCommand(mangleCmd, itblocksCmd, listCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func lookupFixture(name string) (*fixture.Program, error) {
	for _, p := range fixture.All() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown fixture %q (see \"armmangle list\")", name)
}

func printStats(s *armir.Stats) {
	fmt.Printf("stats: non_mbr_respill_avoided=%d it_blocks_split=%d it_blocks_reinstated=%d ldm_peeled_registers=%d\n",
		s.NonMBRRespillAvoided, s.ITBlocksSplit, s.ITBlocksReinstated, s.LDMPeeledRegisters)
}

func parseReg(s string) (armir.Reg, error) {
	switch s {
	case "r0":
		return armir.R0, nil
	case "r1":
		return armir.R1, nil
	case "r2":
		return armir.R2, nil
	case "r3":
		return armir.R3, nil
	case "r8":
		return armir.R8, nil
	case "r9":
		return armir.R9, nil
	case "r10":
		return armir.R10, nil
	case "r11":
		return armir.R11, nil
	case "r12":
		return armir.R12, nil
	default:
		return armir.RegNone, fmt.Errorf("unsupported register %q", s)
	}
}

// toyDecoder/toyEncoder stand in for this module's out-of-scope decode/encode
// layer (SPEC_FULL.md "Decoding app instructions ... Encoding the IR to
// bytes"): the CLI has no real ARM decoder to call, so it derives everything
// it needs - an app PC read and a widened branch's raw bytes - from the
// fixture's own hand-assigned translation PCs instead of real encodings.
type toyDecoder struct{}

func (toyDecoder) CurPC(mode armir.ISAMode, xlatePC uint32) uint32 {
	return xlatePC + mode.PCBias()
}

func (toyDecoder) RawJmpTarget(mode armir.ISAMode, raw []byte) uint32 {
	return uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
}

type toyEncoder struct{}

func (toyEncoder) RawJmp(mode armir.ISAMode, target uint32, pc uint32) [4]byte {
	var raw [4]byte
	raw[0] = byte(target)
	raw[1] = byte(target >> 8)
	raw[2] = byte(target >> 16)
	raw[3] = byte(target >> 24)
	return raw
}

func toyCollaborators(prog *fixture.Program) mangle.Collaborators {
	step := func(mode armir.ISAMode) uint32 {
		if mode == armir.A32 {
			return 4
		}
		return 2
	}
	return mangle.Collaborators{
		Decoder: toyDecoder{},
		Encoder: toyEncoder{},
		CurAppPC: func(instr *armir.Instr) uint32 {
			return toyDecoder{}.CurPC(instr.Mode, *instr.Xlate)
		},
		ReturnAddr: func(instr *armir.Instr) uint32 {
			if next := instr.Next(); next != nil && next.IsApp() {
				return armir.PCAsJmpTgt(instr.Mode, *next.Xlate)
			}
			return armir.PCAsJmpTgt(instr.Mode, *instr.Xlate+step(instr.Mode))
		},
	}
}
