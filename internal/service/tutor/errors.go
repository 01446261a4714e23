package tutor

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNoContext               = errors.New("no knowledge found for this topic")
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionAlreadyCompleted = errors.New("session already completed")
	ErrSessionNotCompleted     = errors.New("session not yet completed")
	ErrNoAnswers               = errors.New("no answers found for this session")
	ErrInvalidID               = errors.New("invalid id format")
	ErrEmptyAnswer             = errors.New("answer is empty")
	ErrEmptyTopic              = errors.New("topic is empty")
	ErrConcurrentAnswer        = errors.New("another answer for this session is in progress")
)

// ValidateID 校验 UUID 格式
func ValidateID(ids ...string) error {
	for _, id := range ids {
		if err := uuid.Validate(id); err != nil {
			return ErrInvalidID
		}
	}
	return nil
}
