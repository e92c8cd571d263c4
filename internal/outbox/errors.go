package outbox

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid outbox configuration")
	ErrUnknownTopic  = errors.New("no dispatcher for topic")
	ErrNotFound      = errors.New("outbox message not found")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

func unknownTopic(topic string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}
