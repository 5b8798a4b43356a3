package publisher

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Bomb timeline of the synthetic feed, in ticks.
const (
	feedPlantTick   = 40
	feedDefuseTick  = 80
	feedRoundTicks  = 120
	feedFuseSeconds = 40
)

// Feed produces a deterministic synthetic match: players orbit the map centre
// while the C4 is carried, planted, defused and the round restarts.
type Feed struct {
	mapName  string
	players  int
	tickRate time.Duration
	tick     uint64
}

// NewFeed creates a feed of n players on mapName advancing one tick per tickRate.
//
// Precondition: n >= 1 and tickRate > 0.
func NewFeed(mapName string, n int, tickRate time.Duration) *Feed {
	return &Feed{mapName: mapName, players: n, tickRate: tickRate}
}

// Next returns the snapshot for the current tick and advances the feed.
//
// Postcondition: The returned snapshot passes Validate.
func (f *Feed) Next() Snapshot {
	t := f.tick
	f.tick++

	snap := Snapshot{MapName: f.mapName, Tick: t, Players: make([]Player, f.players)}
	for i := range snap.Players {
		angle := float64(t)*0.05 + 2*math.Pi*float64(i)/float64(f.players)
		radius := 400 + 50*float64(i%3)
		team := TeamT
		if i%2 == 1 {
			team = TeamCT
		}
		snap.Players[i] = Player{
			ControllerID: uint32(i + 1),
			Name:         fmt.Sprintf("player-%d", i+1),
			Team:         team,
			Health:       100 - int(t%100)/(i+2),
			Position:     Vec3{float32(radius * math.Cos(angle)), float32(radius * math.Sin(angle)), 64},
			Rotation:     float32(math.Mod(angle*180/math.Pi+90, 360)),
		}
	}
	snap.Bomb = f.bomb(t%feedRoundTicks, snap.Players[0])
	return snap
}

func (f *Feed) bomb(roundTick uint64, carrier Player) *Bomb {
	switch {
	case roundTick < feedPlantTick/2:
		owner := carrier.ControllerID
		return &Bomb{State: BombCarried, OwnerID: &owner}
	case roundTick < feedPlantTick:
		pos := carrier.Position
		return &Bomb{State: BombDropped, Position: &pos}
	case roundTick < feedDefuseTick:
		pos := Vec3{-1200, 800, 64}
		elapsed := float32(roundTick-feedPlantTick) * float32(f.tickRate.Seconds())
		b := &Bomb{
			State:          BombActive,
			Position:       &pos,
			Site:           SiteA,
			TimeDetonation: max(feedFuseSeconds-elapsed, 0),
		}
		if roundTick >= feedDefuseTick-10 {
			b.Defuser = &Defuser{
				PlayerName:    "player-2",
				TimeRemaining: float32(feedDefuseTick-roundTick) * float32(f.tickRate.Seconds()),
			}
		}
		return b
	default:
		return &Bomb{State: BombDefused}
	}
}

// Run publishes a feed snapshot through client every tickRate until ctx is
// done or ticks snapshots have been sent. ticks <= 0 means unbounded.
//
// Postcondition: Returns nil when ctx is cancelled or the tick budget is spent.
func (f *Feed) Run(ctx context.Context, client *Client, ticks int, logger *zap.Logger) error {
	ticker := time.NewTicker(f.tickRate)
	defer ticker.Stop()

	for sent := 0; ticks <= 0 || sent < ticks; sent++ {
		snap := f.Next()
		if err := client.PublishState(snap); err != nil {
			return fmt.Errorf("publishing tick %d: %w", snap.Tick, err)
		}
		if snap.Tick%50 == 0 {
			logger.Debug("published snapshot", zap.Uint64("tick", snap.Tick), zap.Int("players", len(snap.Players)))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
