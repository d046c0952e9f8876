package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"bbemu/emu/log"
)

type mode byte

const (
	runMode     mode = iota // Run the machine
	linesMode               // Show the interrupt line table
	versionMode             // Show bbemu version
)

type (
	CLI struct {
		Run     Run     `cmd:"" help:"Run the machine." default:"withargs"`
		Lines   Lines   `cmd:"" help:"Show the interrupt line table."`
		Version Version `cmd:"" help:"Show bbemu version."`

		Log logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`

		mode mode
	}

	Run struct {
		Config   string        `name:"config" help:"${config_help}" type:"existingfile"`
		Duration time.Duration `name:"duration" help:"Virtual time to run, 0 runs until interrupted." default:"0"`
		Quantum  time.Duration `name:"quantum" help:"Virtual time run between two bridge requests." default:"1ms"`
		Realtime bool          `name:"realtime" help:"Pace virtual time on the wall clock."`
		Bridge   string        `name:"bridge" help:"${bridge_help}" placeholder:"ADDR"`
	}

	Lines struct {
		Config string `name:"config" help:"${config_help}" type:"existingfile"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"config_help": "Machine description (toml). Defaults to the built-in machine.",
	"bridge_help": "Listen for line injection requests on ADDR (overrides the config).",
	"log_help":    "Enable logging for specified modules.",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("bbemu"),
		kong.Description("Baseband SoC interrupt and timer emulator."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	switch ctx.Command() {
	case "lines":
		cfg.mode = linesMode
	case "version":
		cfg.mode = versionMode
	default:
		cfg.mode = runMode
	}
	return cfg
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if strings.HasPrefix(ctx.Command(), "run") {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}

		fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"))
	}

	return nil
}

type logModMask log.ModuleMask

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm logModMask) Decode(ctx *kong.DecodeContext) error {
	nolog := false
	allLogs := false

	tok := ctx.Scan.Pop()
	for _, v := range strings.Split(tok.Value.(string), ",") {
		switch v {
		case "all":
			allLogs = true
		case "no":
			nolog = true
		default:
			mod, ok := log.ModuleByName(v)
			if !ok {
				return fmt.Errorf("unknown log module %s", v)
			}
			lm |= logModMask(mod.Mask())
		}
	}

	if nolog {
		if allLogs {
			return fmt.Errorf("cannot use 'all' and 'no' together")
		}
		if lm != 0 {
			return fmt.Errorf("cannot combine 'no' with other log modules")
		}
		log.Disable()
		return nil
	}

	if allLogs {
		lm = logModMask(log.ModuleMaskAll)
	}

	log.EnableDebugModules(log.ModuleMask(lm))
	return nil
}

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
