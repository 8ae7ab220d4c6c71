// Package asset holds the media asset state machine and the object key
// taxonomy shared by every pipeline handler.
package asset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnrecognizedKey = errors.New("asset: unrecognized object key")
	ErrInvalidState    = errors.New("asset: invalid state")
	ErrRegression      = errors.New("asset: state regression")
)

type Kind string

const (
	KindAvatar    Kind = "avatar"
	KindRecording Kind = "recording"
	KindAudio     Kind = "audio"
)

// Prefix is the first key segment for assets of this kind.
func (k Kind) Prefix() string {
	switch k {
	case KindAvatar:
		return "avatars"
	case KindRecording:
		return "recordings"
	case KindAudio:
		return "audios"
	}
	return ""
}

func kindFromPrefix(prefix string) (Kind, bool) {
	switch prefix {
	case "avatars":
		return KindAvatar, true
	case "recordings":
		return KindRecording, true
	case "audios":
		return KindAudio, true
	}
	return "", false
}

type Stage string

const (
	StageOriginals Stage = "originals"
	StageProcessed Stage = "processed"
)

type State string

const (
	StateCreated   State = "created"
	StateUploaded  State = "uploaded"
	StateProcessed State = "processed"
)

// Rank orders states along the lifecycle; unknown states rank -1.
func (s State) Rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateUploaded:
		return 1
	case StateProcessed:
		return 2
	}
	return -1
}

func (s State) Valid() bool {
	return s.Rank() >= 0
}

func ParseState(s string) (State, error) {
	st := State(strings.ToLower(s))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return st, nil
}

// CanTransition permits forward moves and same-state writes. Created may jump
// straight to Processed when the processed notification overtakes the original.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() >= from.Rank()
}

// Transition validates a move and returns the resulting state.
func Transition(from, to State) (State, error) {
	if !from.Valid() || !to.Valid() {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrRegression, from, to)
	}
	return to, nil
}
