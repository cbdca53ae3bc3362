package ovenrack

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable wraps every failure to reach or talk to an upstream resolver.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrProtocolViolation is returned when an upstream replies with a message flagged as a query.
	ErrProtocolViolation = errors.New("upstream protocol violation")
)

type ConfigError struct {
	Setting string
	Value   string
	Reason  string
}

func (err *ConfigError) Error() string {
	if len(err.Value) == 0 {
		return fmt.Sprintf("Invalid [%s]: %s", err.Setting, err.Reason)
	}
	return fmt.Sprintf("Invalid [%s] value [%s]: %s", err.Setting, err.Value, err.Reason)
}

func unavailable(upstream fmt.Stringer, err error) error {
	return fmt.Errorf("%w: [%v]: %w", ErrUpstreamUnavailable, upstream, err)
}
