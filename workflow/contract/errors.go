package contract

import "errors"

var (
	ErrUnknownStage     = errors.New("unknown agent stage")
	ErrStageUnavailable = errors.New("stage communication failed")
	ErrInvalidEmail     = errors.New("email input is invalid")
	ErrReviewAborted    = errors.New("review input aborted")
)
