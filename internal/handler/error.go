package handler

import "fmt"

// NotInVoiceChannelError indicates the invoking member must be in a voice
// channel for the command to make sense.
type NotInVoiceChannelError struct {
	MemberID string
}

func (e *NotInVoiceChannelError) Error() string {
	return fmt.Sprintf("member %s is not in a voice channel", e.MemberID)
}

var _ error = (*NotInVoiceChannelError)(nil)

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)
