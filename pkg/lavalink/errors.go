package lavalink

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTrack    = errors.New("invalid track data")
	ErrOutOfRange      = errors.New("value out of range")
	ErrNoTrack         = errors.New("no track to play")
	ErrAuthentication  = errors.New("node rejected credentials")
	ErrNodeClosed      = errors.New("node connection permanently closed")
	ErrNoAvailableNode = errors.New("no node available")
	ErrPlayerNotFound  = errors.New("player not found")
)

// MissingFieldError is returned when a track cannot be built because a
// required field is absent from the source data.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("cannot build a track from partial data (missing field: %s)", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrInvalidTrack }

// BandError reports an equalizer band index outside 0-14.
type BandError struct {
	Band int
}

func (e *BandError) Error() string {
	return fmt.Sprintf("%d is an invalid band, must be 0-%d", e.Band, EqualizerBands-1)
}

func (e *BandError) Unwrap() error { return ErrOutOfRange }

// TimeRangeError reports a start or end time outside [0, duration].
type TimeRangeError struct {
	Field    string
	Value    int64
	Duration int64
}

func (e *TimeRangeError) Error() string {
	return fmt.Sprintf("%s %dms is outside the track duration [0, %d]", e.Field, e.Value, e.Duration)
}

func (e *TimeRangeError) Unwrap() error { return ErrOutOfRange }
