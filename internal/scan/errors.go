package scan

import "errors"

var (
	ErrInvalidRange  = errors.New("invalid nonce range")
	ErrInvalidWager  = errors.New("wager must be a positive finite number")
	ErrInvalidTarget = errors.New("invalid target operation")
	ErrMissingSeeds  = errors.New("server and client seeds are required")
)
