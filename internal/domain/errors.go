package domain

import "errors"

var (
	ErrQuotaExceeded          = errors.New("daily quota exceeded")
	ErrRateLimited            = errors.New("platform rate limited the action")
	ErrCaptchaDetected        = errors.New("captcha detected")
	ErrTransientAction        = errors.New("action failed")
	ErrPrecondition           = errors.New("precondition failed")
	ErrStrategyNotInitialized = errors.New("strategy not initialized")
	ErrInvalidTransition      = errors.New("invalid sop run transition")
	ErrUnknownActionType      = errors.New("unknown action type")
	ErrUnknownNoteType        = errors.New("unknown note type")
)
