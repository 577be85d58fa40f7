package engine

// A straight needs exactly this many dice showing every face once.
const straightLen = 6

func faceCounts(dice []int) map[int]int {
	counts := make(map[int]int, len(dice))
	for _, d := range dice {
		counts[d]++
	}
	return counts
}

func isStraight(dice []int) bool {
	if len(dice) != straightLen {
		return false
	}
	return len(faceCounts(dice)) == straightLen
}

// HasScoring reports whether at least one die in the roll can be taken.
func HasScoring(dice []int) bool {
	if isStraight(dice) {
		return true
	}
	for face, n := range faceCounts(dice) {
		if face == 1 || face == 5 || n >= 3 {
			return true
		}
	}
	return false
}

// TakeResult describes the dice removed by a single take.
type TakeResult struct {
	Points    int
	Taken     []int
	Remaining []int
}

// ScoreTake scores taking dice[index]. A straight takes everything, a face
// showing three or more times takes every die of that face, and otherwise
// only a single 1 or 5 may be taken.
func ScoreTake(r Rules, dice []int, index int) (TakeResult, error) {
	if index < 0 || index >= len(dice) {
		return TakeResult{}, ErrIllegalTake
	}

	if isStraight(dice) {
		return TakeResult{
			Points:    r.StraightBonus,
			Taken:     append([]int(nil), dice...),
			Remaining: []int{},
		}, nil
	}

	face := dice[index]
	count := faceCounts(dice)[face]

	if count >= 3 {
		base := face * 100
		if face == 1 {
			base = 1000
		}
		res := TakeResult{Points: base << (count - 3), Remaining: []int{}}
		for _, d := range dice {
			if d == face {
				res.Taken = append(res.Taken, d)
			} else {
				res.Remaining = append(res.Remaining, d)
			}
		}
		return res, nil
	}

	var points int
	switch face {
	case 1:
		points = 100
	case 5:
		points = 50
	default:
		return TakeResult{}, ErrIllegalTake
	}

	remaining := make([]int, 0, len(dice)-1)
	remaining = append(remaining, dice[:index]...)
	remaining = append(remaining, dice[index+1:]...)
	return TakeResult{Points: points, Taken: []int{face}, Remaining: remaining}, nil
}
