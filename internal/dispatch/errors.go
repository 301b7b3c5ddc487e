package dispatch

import "errors"

var (
	// ErrCapacityExhausted means no agent could take on another chat
	ErrCapacityExhausted = errors.New("no agent capacity available")
	// ErrTransferNotFound means the transfer id is unknown or already resolved
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrTransferExpired means the transfer timed out before acceptance
	ErrTransferExpired = errors.New("transfer expired")
	// ErrNotTransferTarget means the accepting agent is not the addressee
	ErrNotTransferTarget = errors.New("agent is not the transfer target")
	// ErrTransferPending means the session already has an unresolved transfer
	ErrTransferPending = errors.New("session already has a pending transfer")
	// ErrSelfTransfer means source and target agent are the same
	ErrSelfTransfer = errors.New("cannot transfer a session to the same agent")
)
