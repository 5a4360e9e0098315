package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lumenvm/lumen/internal/chunk"
	"github.com/lumenvm/lumen/internal/config"
	"github.com/lumenvm/lumen/internal/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <file" + config.ChunkFileExt + ">",
	Short: "Execute a compiled chunk file",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

func init() {
	runCmd.Flags().Int("fuel", 0, "instruction budget per step (0 = config default)")
	runCmd.Flags().String("config", "", "path to a yaml config file")
}

func runChunk(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}
	if fuel, _ := cmd.Flags().GetInt("fuel"); fuel > 0 {
		cfg.FuelPerStep = fuel
	}

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}

	proto, err := chunk.LoadFile(args[0])
	if err != nil {
		return err
	}

	heap := vm.NewHeap(vm.HeapConfig{
		StepWork:     cfg.GC.StepWork,
		PausePercent: cfg.GC.PausePercent,
		ObjectLimit:  cfg.GC.ObjectLimit,
		Logger:       log,
	})
	ex := vm.NewExecutor(heap, heap.NewClosure(proto), nil, vm.Options{
		MaxCallDepth:  cfg.MaxCallDepth,
		MaxStackSlots: cfg.MaxStackSlots,
		Logger:        log,
	})
	defer ex.Close()
	vm.OpenBase(ex)
	vm.OpenMath(ex)

	for {
		res := ex.Step(cfg.FuelPerStep)
		switch res.Kind {
		case vm.StepPending:
			continue
		case vm.StepYielded:
			return fmt.Errorf("%s: program yielded to the host with no resumer", args[0])
		case vm.StepErrored:
			reportScriptError(cmd, res.Err)
			return fmt.Errorf("%s: execution failed", args[0])
		case vm.StepFinished:
			printResults(res.Values)
			return nil
		}
	}
}

func printResults(values []vm.Value) {
	if len(values) == 0 {
		return
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = vm.ToString(v)
	}
	fmt.Println(strings.Join(parts, "\t"))
}

func reportScriptError(cmd *cobra.Command, err error) {
	errColor := color.New(color.FgRed, color.Bold)
	if !useColor(cmd, os.Stderr) {
		errColor.DisableColor()
	}
	var serr *vm.ScriptError
	if !errors.As(err, &serr) {
		errColor.Fprintln(os.Stderr, err)
		return
	}
	errColor.Fprintln(os.Stderr, "error: "+serr.Error())
	if tb := serr.FormatTraceback(); tb != "" {
		fmt.Fprintln(os.Stderr, tb)
	}
}
