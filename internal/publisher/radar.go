package publisher

import (
	"fmt"
)

// Vec3 is a world-space position.
type Vec3 [3]float32

// Team identifies a player's side.
type Team int

const (
	TeamSpectator Team = 1
	TeamT         Team = 2
	TeamCT        Team = 3
)

// Player is one entry on the radar.
type Player struct {
	ControllerID uint32  `json:"controller_id"`
	Name         string  `json:"name"`
	Team         Team    `json:"team"`
	Health       int     `json:"health"`
	Position     Vec3    `json:"position"`
	Rotation     float32 `json:"rotation"`
}

// BombState is the lifecycle stage of the C4.
type BombState string

const (
	BombCarried   BombState = "carried"
	BombDropped   BombState = "dropped"
	BombActive    BombState = "active"
	BombDetonated BombState = "detonated"
	BombDefused   BombState = "defused"
)

// BombSite is the site a C4 was planted on.
type BombSite string

const (
	SiteA BombSite = "A"
	SiteB BombSite = "B"
)

// Defuser describes an in-progress defuse.
type Defuser struct {
	PlayerName    string  `json:"player_name"`
	TimeRemaining float32 `json:"time_remaining"`
}

// Bomb is the C4 as shown on the radar. TimeDetonation is only meaningful in
// BombActive; Site and Defuser are only set once planted.
type Bomb struct {
	State          BombState `json:"state"`
	Position       *Vec3     `json:"position,omitempty"`
	TimeDetonation float32   `json:"time_detonation,omitempty"`
	Site           BombSite  `json:"site,omitempty"`
	Defuser        *Defuser  `json:"defuser,omitempty"`
	OwnerID        *uint32   `json:"owner_id,omitempty"`
}

// Validate checks that the fields set agree with State.
func (b Bomb) Validate() error {
	switch b.State {
	case BombCarried:
		if b.OwnerID == nil {
			return fmt.Errorf("carried bomb requires an owner")
		}
	case BombDropped:
		if b.Position == nil {
			return fmt.Errorf("dropped bomb requires a position")
		}
	case BombActive:
		if b.Site != SiteA && b.Site != SiteB {
			return fmt.Errorf("active bomb requires site A or B, got %q", b.Site)
		}
		if b.TimeDetonation < 0 {
			return fmt.Errorf("negative detonation time %v", b.TimeDetonation)
		}
	case BombDetonated, BombDefused:
	default:
		return fmt.Errorf("unknown bomb state %q", b.State)
	}
	if b.Defuser != nil && b.State != BombActive {
		return fmt.Errorf("defuser present on %s bomb", b.State)
	}
	return nil
}

// Snapshot is the payload a radar publisher sends on every tick.
type Snapshot struct {
	MapName string   `json:"map_name"`
	Tick    uint64   `json:"tick"`
	Players []Player `json:"players"`
	Bomb    *Bomb    `json:"bomb,omitempty"`
}

// Validate checks the snapshot for internally inconsistent data.
func (s Snapshot) Validate() error {
	if s.MapName == "" {
		return fmt.Errorf("snapshot missing map name")
	}
	seen := make(map[uint32]bool, len(s.Players))
	for _, p := range s.Players {
		if seen[p.ControllerID] {
			return fmt.Errorf("duplicate controller id %d", p.ControllerID)
		}
		seen[p.ControllerID] = true
	}
	if s.Bomb != nil {
		if err := s.Bomb.Validate(); err != nil {
			return fmt.Errorf("bomb: %w", err)
		}
	}
	return nil
}
