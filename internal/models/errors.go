package models

import "errors"

// Custom errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateKey       = errors.New("duplicate key violation")
	ErrInvalidID          = errors.New("invalid ID format")
	ErrReasonRequired     = errors.New("a reason is required for this action")
	ErrResultsOfficial    = errors.New("results are official and frozen")
	ErrResultsNotOfficial = errors.New("results are not official")
	ErrRaceNotComplete    = errors.New("race not complete")
	ErrUnresolvedAnomaly  = errors.New("participant has unresolved timing anomalies")
	ErrInvalidTransition  = errors.New("invalid result status transition")
)
