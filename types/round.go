package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoundID identifies a rating round. Identifiers are allocated from 1
// upwards, NoRound (0) means "no round".
type RoundID uint64

// NoRound is the sentinel round identifier.
const NoRound RoundID = 0

// Bytes returns the big-endian 8 byte encoding of the round id, used as a
// database key component so that rounds iterate in order.
func (r RoundID) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(r))
	return b
}

func (r RoundID) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// ParseRoundID parses a decimal round identifier.
func ParseRoundID(s string) (RoundID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoRound, fmt.Errorf("invalid round id %q: %w", s, err)
	}
	return RoundID(v), nil
}

// RoundStatus is the lifecycle status of a round.
type RoundStatus uint8

const (
	RoundActive RoundStatus = iota
	RoundEnded
)

func (s RoundStatus) String() string {
	switch s {
	case RoundActive:
		return "active"
	case RoundEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s RoundStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RoundStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = RoundActive
	case "ended":
		*s = RoundEnded
	default:
		return fmt.Errorf("unknown round status %q", text)
	}
	return nil
}

// Round is a rating round.
type Round struct {
	ID        RoundID     `json:"id"        cbor:"0,keyasint"`
	Status    RoundStatus `json:"status"    cbor:"1,keyasint"`
	CreatedAt time.Time   `json:"createdAt" cbor:"2,keyasint"`
	EndedAt   time.Time   `json:"endedAt"   cbor:"3,keyasint"`
}

// IsActive reports whether the round still accepts weights and ratings.
func (r *Round) IsActive() bool {
	return r != nil && r.Status == RoundActive
}

// WeightConfig holds the confidential per-round dimension weights. A zero
// RoundID marks an unset configuration.
type WeightConfig struct {
	RoundID   RoundID          `json:"roundId"   cbor:"0,keyasint"`
	Weights   DimensionHandles `json:"weights"   cbor:"1,keyasint"`
	UpdatedAt time.Time        `json:"updatedAt" cbor:"2,keyasint"`
}

// IsSet reports whether the configuration was ever written.
func (w *WeightConfig) IsSet() bool {
	return w != nil && w.RoundID != NoRound
}

// Rating is a confidential five dimensional rating of a ratee by a rater.
type Rating struct {
	Rater       common.Address   `json:"rater"       cbor:"0,keyasint"`
	Ratee       common.Address   `json:"ratee"       cbor:"1,keyasint"`
	RoundID     RoundID          `json:"roundId"     cbor:"2,keyasint"`
	Scores      DimensionHandles `json:"scores"      cbor:"3,keyasint"`
	SubmittedAt time.Time        `json:"submittedAt" cbor:"4,keyasint"`
}

// Aggregate is the derived confidential result for a ratee in a round. The
// dimension values are raw sums, averaging happens after reveal.
type Aggregate struct {
	Ratee         common.Address   `json:"ratee"         cbor:"0,keyasint"`
	RoundID       RoundID          `json:"roundId"       cbor:"1,keyasint"`
	DimensionSums DimensionHandles `json:"dimensionSums" cbor:"2,keyasint"`
	WeightedTotal Handle           `json:"weightedTotal" cbor:"3,keyasint"`
	RatingCount   uint64           `json:"ratingCount"   cbor:"4,keyasint"`
	ComputedAt    time.Time        `json:"computedAt"    cbor:"5,keyasint"`
}

// MemberEvent records the insertion of a new member into a round roster.
type MemberEvent struct {
	RoundID RoundID        `json:"roundId" cbor:"0,keyasint"`
	Account common.Address `json:"account" cbor:"1,keyasint"`
	Seq     uint64         `json:"seq"     cbor:"2,keyasint"`
	Time    time.Time      `json:"time"    cbor:"3,keyasint"`
}
