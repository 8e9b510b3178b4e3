package service

import "errors"

var (
	ErrAnonymous     = errors.New("viewer is not signed in")
	ErrAlreadyVoted  = errors.New("viewer already voted on this node")
	ErrVoteInFlight  = errors.New("a vote is already in flight")
	ErrInvalidWeight = errors.New("vote weight must be non-zero and within [-10000, 10000]")
	ErrVoteFailed    = errors.New("vote failed")

	ErrNotAuthor    = errors.New("only the author can edit this node")
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrEditFailed   = errors.New("edit failed")

	ErrUnmounted        = errors.New("node is no longer mounted")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session belongs to another viewer")
	ErrNodeNotFound     = errors.New("node not found in session")
)
