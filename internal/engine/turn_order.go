package engine

import (
	"cmp"
	"maps"
	"slices"
)

// SeatOrder lists player ids in join order. Turns rotate through it.
func SeatOrder(s Room) []string {
	ids := slices.Collect(maps.Keys(s.Players))
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(s.Players[a].Seat, s.Players[b].Seat); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func nextPlayer(s Room, current string) string {
	order := SeatOrder(s)
	if len(order) == 0 {
		return ""
	}
	i := slices.Index(order, current)
	if i < 0 {
		return order[0]
	}
	return order[(i+1)%len(order)]
}
