package session

import (
	"errors"
	"fmt"
)

// ErrNoCurrentCard is returned by Review when there is nothing to answer:
// the queue is exhausted and no learning card has been promoted yet.
var ErrNoCurrentCard = errors.New("session: no current card")

// StoreError reports that a review was applied in memory but could not be
// written to the card store. The caller may retry the write.
type StoreError struct {
	CardID string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session: persist card %s: %v", e.CardID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
