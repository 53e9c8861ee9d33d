package server

import (
	"go.uber.org/zap"

	"fish-server/internal/fish"
)

func requireGame(room *Room, id fish.PlayerID) error {
	if room.player(id) == nil {
		return ErrNotInRoom
	}
	if room.Phase != PhaseInProgress || room.Game == nil {
		return ErrGameNotInProgress
	}
	return nil
}

func (m *RoomManager) AskCard(code string, asker, target fish.PlayerID, card fish.Card) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireGame(room, asker); err != nil {
			return nil, err
		}
		out, err := room.Game.AskCard(asker, target, card)
		if err != nil {
			return nil, err
		}
		if !out.Legal {
			m.logger.Debug("illegal question",
				zap.String("room_code", room.Code),
				zap.String("player_id", string(asker)),
				zap.String("reason", string(out.Reason)),
			)
		}
		return &Update{Ask: &out}, nil
	})
}

func (m *RoomManager) MakeClaim(code string, claimer fish.PlayerID, half fish.HalfSuit, dist fish.Distribution, target fish.Team) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireGame(room, claimer); err != nil {
			return nil, err
		}
		out, err := room.Game.MakeClaim(claimer, half, dist, target)
		if err != nil {
			return nil, err
		}
		m.logger.Info("half-suit claimed",
			zap.String("room_code", room.Code),
			zap.String("player_id", string(claimer)),
			zap.String("half_suit", string(half)),
			zap.Bool("success", out.Success),
			zap.String("awarded_to", string(out.AwardedTo)),
		)
		return &Update{Claim: &out}, nil
	})
}

func (m *RoomManager) TogglePause(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireGame(room, id); err != nil {
			return nil, err
		}
		paused, err := room.Game.TogglePause(id)
		if err != nil {
			return nil, err
		}
		return &Update{Paused: paused}, nil
	})
}

// DeclareWinner ends the game early for a team that has already clinched.
func (m *RoomManager) DeclareWinner(code string, id fish.PlayerID, team fish.Team) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireGame(room, id); err != nil {
			return nil, err
		}
		if !room.isHost(id) {
			return nil, ErrNotHost
		}
		if err := room.Game.DeclareWinner(team); err != nil {
			return nil, err
		}
		return &Update{}, nil
	})
}
