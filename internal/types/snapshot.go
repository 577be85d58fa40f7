package types

import "github.com/DoyleJ11/kostky-backend/internal/engine"

// RoomSnapshot is the bootstrap read served at GET /rooms/{code}.
//   version: number
//   room:
//     status: "lobby" | "playing" | "stats"
//     state: { turn, lastDice, storedDice, rollCount, isAnimating,
//              turnBasePoints, sixCount, mirrorActive, hasTakenThisRoll, bonusActive }
//     players: { [playerId]: { name, seat, score, strikes, coins, resets } }
//     visuals: { resetFlash, mirrorFlash }
//     chat:    { [msgId]: { sender, text, timestamp, seq } }
type RoomSnapshot struct {
	Code    string      `json:"code"`
	Version int         `json:"version"`
	Room    engine.Room `json:"room"`
}

type CreatedRoom struct {
	Code string `json:"code"`
}
