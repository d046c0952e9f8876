package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"bbemu/emu"
	"bbemu/emu/bridge"
	"bbemu/emu/log"
)

// runMachine runs the machine until ctx is done or the requested virtual
// duration elapsed, serving the bridge if configured.
func runMachine(ctx context.Context, cfg emu.Config, args Run) error {
	m, err := emu.NewMachine(cfg)
	if err != nil {
		return err
	}
	log.AddContext(m)
	defer log.RemoveContext(m)

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Bridge.Addr != "" {
		srv, err := bridge.Listen(cfg.Bridge.Addr, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(ctx) })
	}

	g.Go(func() error {
		defer cancel()
		return loop(ctx, m, args)
	})

	err = g.Wait()
	log.ModEmu.InfoZ("emulation stopped").
		Duration("vtime", time.Duration(m.Now())).
		End()
	return err
}

// loop advances the machine by quanta, releasing the machine lock between
// two of them so that bridge requests interleave.
func loop(ctx context.Context, m *emu.Machine, args Run) error {
	quantum := args.Quantum
	if quantum <= 0 {
		quantum = time.Millisecond
	}

	var tick <-chan time.Time
	if args.Realtime {
		t := time.NewTicker(quantum)
		defer t.Stop()
		tick = t.C
	}

	start := m.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		d := quantum
		if args.Duration > 0 {
			left := time.Duration(start + int64(args.Duration) - m.Now())
			if left <= 0 {
				return nil
			}
			d = min(d, left)
		}
		m.RunFor(d)

		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
}
