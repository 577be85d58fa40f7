package engine

import (
	"math/rand/v2"
	"sync"
)

// Roller draws n die faces in 1..6.
type Roller interface {
	Roll(n int) []int
}

type RandomRoller struct{}

func (RandomRoller) Roll(n int) []int {
	dice := make([]int, n)
	for i := range dice {
		dice[i] = rand.IntN(6) + 1
	}
	return dice
}

// ScriptedRoller replays fixed rolls in order. Once the script runs out it
// returns twos, which never score unless three or more are drawn.
type ScriptedRoller struct {
	mu    sync.Mutex
	rolls [][]int
}

func NewScriptedRoller(rolls ...[]int) *ScriptedRoller {
	return &ScriptedRoller{rolls: rolls}
}

func (s *ScriptedRoller) Push(rolls ...[]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolls = append(s.rolls, rolls...)
}

func (s *ScriptedRoller) Roll(n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dice := make([]int, n)
	var next []int
	if len(s.rolls) > 0 {
		next, s.rolls = s.rolls[0], s.rolls[1:]
	}
	for i := range dice {
		if i < len(next) {
			dice[i] = next[i]
		} else {
			dice[i] = 2
		}
	}
	return dice
}
