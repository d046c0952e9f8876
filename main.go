package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"bbemu/emu"
)

var version = "devel"

func main() {
	cli := parseArgs(os.Args[1:])

	switch cli.mode {
	case versionMode:
		fmt.Println("bbemu", version)
	case linesMode:
		cfg := loadConfig(cli.Lines.Config)
		printLines(cfg)
	case runMode:
		cfg := loadConfig(cli.Run.Config)
		if cli.Run.Bridge != "" {
			cfg.Bridge.Addr = cli.Run.Bridge
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		checkf(runMachine(ctx, cfg, cli.Run), "emulation failed")
	}
}

func loadConfig(path string) emu.Config {
	if path == "" {
		return emu.DefaultConfig()
	}
	cfg, err := emu.LoadConfig(path)
	checkf(err, "failed to load configuration")
	return cfg
}

func printLines(cfg emu.Config) {
	table, err := cfg.LineTable()
	checkf(err, "invalid line table")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCLASS\tPRIO\tWEIGHT\tTRIGGER\tDYNAMIC")
	for id, spec := range table.Specs() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%t\n",
			id, spec.Name, spec.Class, spec.Priority, spec.Weight, spec.Trigger, spec.Dynamic)
	}
	w.Flush()
}
