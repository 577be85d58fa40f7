package engine

import (
	"errors"
	"fmt"
)

// Rules holds the game-design constants of a room. They are configuration,
// not part of the stored document.
type Rules struct {
	BankFloor       int `yaml:"bank_floor"`
	WinScore        int `yaml:"win_score"`
	MaxRolls        int `yaml:"max_rolls"`
	StrikeLimit     int `yaml:"strike_limit"`
	SixTrigger      int `yaml:"six_trigger"`
	StraightBonus   int `yaml:"straight_bonus"`
	DiceCount       int `yaml:"dice_count"`
	BonusMultiplier int `yaml:"bonus_multiplier"`
	MaxPlayers      int `yaml:"max_players"`
	MinPlayers      int `yaml:"min_players"`
	MaxChatLength   int `yaml:"max_chat_length"`
	MaxChatMessages int `yaml:"max_chat_messages"`
}

func DefaultRules() Rules {
	return Rules{
		BankFloor:       350,
		WinScore:        10000,
		MaxRolls:        3,
		StrikeLimit:     3,
		SixTrigger:      23,
		StraightBonus:   1500,
		DiceCount:       6,
		BonusMultiplier: 2,
		MaxPlayers:      8,
		MinPlayers:      1,
		MaxChatLength:   200,
		MaxChatMessages: 50,
	}
}

var ErrInvalidRules = errors.New("invalid rules")

func (r Rules) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"bank_floor", r.BankFloor},
		{"win_score", r.WinScore},
		{"max_rolls", r.MaxRolls},
		{"strike_limit", r.StrikeLimit},
		{"six_trigger", r.SixTrigger},
		{"dice_count", r.DiceCount},
		{"bonus_multiplier", r.BonusMultiplier},
		{"max_players", r.MaxPlayers},
		{"min_players", r.MinPlayers},
		{"max_chat_length", r.MaxChatLength},
		{"max_chat_messages", r.MaxChatMessages},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidRules, p.name, p.v)
		}
	}
	// Scoring assumes one die per face: straights and the n-of-a-kind doubling.
	if r.DiceCount != straightLen {
		return fmt.Errorf("%w: dice_count must be %d, got %d", ErrInvalidRules, straightLen, r.DiceCount)
	}
	if r.StraightBonus < 0 {
		return fmt.Errorf("%w: straight_bonus must not be negative", ErrInvalidRules)
	}
	if r.MinPlayers > r.MaxPlayers {
		return fmt.Errorf("%w: min_players %d exceeds max_players %d", ErrInvalidRules, r.MinPlayers, r.MaxPlayers)
	}
	return nil
}
