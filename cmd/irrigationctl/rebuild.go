package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

const defaultRebuildWorkers = 4

// runRebuild recomputes CurrentStatus from the event log for one device or
// for every registered device.
func runRebuild(ctx context.Context, e *env, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fset.SetOutput(out)
	deviceID := fset.String("device", "", "rebuild only this device ID")
	workers := fset.Int("workers", defaultRebuildWorkers, "devices rebuilt concurrently")
	if err := fset.Parse(args); err != nil {
		return err
	}

	ids := []string{*deviceID}
	if *deviceID == "" {
		devices, err := e.registry.ListDevices(ctx)
		if err != nil {
			return fmt.Errorf("listing devices: %w", err)
		}
		ids = ids[:0]
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
	}

	statuses, err := rebuildAll(ctx, e, ids, *workers)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s := statuses[id]
		fmt.Fprintf(out, "%s moisture=%.1f pump=%t auto=%t\n", id, s.CurrentMoisture, s.PumpStatus, s.AutoMode)
	}
	fmt.Fprintf(out, "rebuilt %d device(s)\n", len(ids))
	return nil
}

// rebuildAll rebuilds ids with at most workers in flight. The first
// failure cancels the remaining rebuilds.
func rebuildAll(ctx context.Context, e *env, ids []string, workers int) (map[string]irrigation.CurrentStatus, error) {
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	statuses := make(map[string]irrigation.CurrentStatus, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			status, err := e.service.RebuildStatus(gctx, id)
			if err != nil {
				return fmt.Errorf("rebuilding %s: %w", id, err)
			}
			e.recorder.Record(gctx, &audit.AuditLog{
				Action:     audit.ActionRebuild,
				EntityType: audit.EntityDevice,
				EntityID:   id,
				Source:     audit.SourceCLI,
			})
			mu.Lock()
			statuses[id] = *status
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}
