package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a non admin calls an admin operation.
	ErrUnauthorized = errors.New("caller is not the admin")
	// ErrInvalidRound is returned for the sentinel round, unknown rounds and,
	// for operations that need it, rounds that already ended.
	ErrInvalidRound = errors.New("invalid round")
	// ErrNotAMember is returned when the rater or the ratee is not a member
	// of the round.
	ErrNotAMember = errors.New("not a member of the round")
	// ErrSelfRating is returned when rater and ratee are the same account.
	ErrSelfRating = errors.New("cannot rate yourself")
	// ErrDuplicateRating is returned when the rater already rated the ratee
	// in the round.
	ErrDuplicateRating = errors.New("already rated in this round")
	// ErrWeightsNotSet is returned when aggregating a round without weights.
	ErrWeightsNotSet = errors.New("weights not set for the round")
	// ErrNoRatings is returned when aggregating a ratee nobody rated.
	ErrNoRatings = errors.New("no ratings for the ratee")
	// ErrCapabilityFailure is returned when the confidential-value capability
	// rejects an input or fails an operation. It is joined with the cause.
	ErrCapabilityFailure = errors.New("confidential value operation failed")
	// ErrTooManySubscribers is returned when the live member event
	// subscriptions are at capacity.
	ErrTooManySubscribers = errors.New("too many member event subscribers")
)

// capabilityError tags err as a capability failure while keeping the
// original cause inspectable with errors.Is.
func capabilityError(op string, err error) error {
	return errors.Join(ErrCapabilityFailure, fmt.Errorf("%s: %w", op, err))
}
