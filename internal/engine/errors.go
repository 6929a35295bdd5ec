package engine

import (
	"errors"
	"fmt"
)

// Category sentinels. Specific errors wrap exactly one of these so callers
// can classify with errors.Is without matching every sentinel.
var (
	ErrValidation = errors.New("validation error")
	ErrPermission = errors.New("permission error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrGameInProgress   = fmt.Errorf("%w: a round is already in progress", ErrConflict)
	ErrNotEnoughPlayers = fmt.Errorf("%w: not enough players to start", ErrValidation)
	ErrTooManyPlayers   = fmt.Errorf("%w: too many players to start", ErrValidation)
	ErrWrongPhase       = fmt.Errorf("%w: that is not possible in the current phase", ErrPermission)
	ErrNotYourRole      = fmt.Errorf("%w: your role cannot do that", ErrPermission)
	ErrDeadActor        = fmt.Errorf("%w: the dead cannot act", ErrPermission)
	ErrAlreadyActed     = fmt.Errorf("%w: you already acted tonight", ErrConflict)
	ErrTargetNotFound   = fmt.Errorf("%w: no such player", ErrNotFound)
	ErrTargetDead       = fmt.Errorf("%w: that player is not alive", ErrNotFound)
	ErrTargetMafia      = fmt.Errorf("%w: you cannot target your own faction", ErrValidation)
	ErrStaleTimer       = fmt.Errorf("%w: timer no longer applies", ErrConflict)
	ErrUnknownCommand   = fmt.Errorf("%w: unknown command", ErrValidation)
)
