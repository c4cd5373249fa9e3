package gameserver

import (
	"context"
	"time"
)

// runTicker is the only writer of the published snapshot and the only
// consumer of the move queue.
func (gs *GameServer) runTicker(ctx context.Context) {
	for {
		start := time.Now()
		gs.Tick()

		for time.Since(start) < gs.opts.tickInterval {
			select {
			case <-ctx.Done():
				return
			case <-time.After(gs.opts.sleepStep):
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// Tick applies one simulation step: drain the queued moves, advance the
// engine and publish the new snapshot. Run calls it on a fixed interval;
// tests may call it directly instead of running the ticker.
func (gs *GameServer) Tick() {
	start := time.Now()

	moves := gs.moves.Drain()
	gs.engine.Move(moves)
	p := gs.publish(gs.engine.Snapshot())
	n := gs.tick.Add(1)

	elapsed := time.Since(start)
	gs.metrics.TickDuration.Observe(elapsed.Seconds())
	gs.metrics.MovesDrained.Add(float64(len(moves)))

	gs.logger.Debug().
		Uint64("tick", n).
		Int("moves", len(moves)).
		Int("players", len(p.snapshot.Players)).
		Uint64("digest", p.digest).
		Dur("took", elapsed).
		Msg("tick")
}
