package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
	ErrInvalidUsername      = fmt.Errorf("invalid username")
	ErrDuplicateConnection  = fmt.Errorf("connection already registered")
	ErrConnectionNotFound   = fmt.Errorf("connection not found")
	ErrProtectedRoom        = fmt.Errorf("room is protected")
	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrInvalidRoomName      = fmt.Errorf("invalid room name")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrEmptyBody            = fmt.Errorf("message body is empty")
	ErrMessageTooLong       = fmt.Errorf("message body is too long")
	ErrStoreUnavailable     = fmt.Errorf("message store unavailable")
	ErrUploadRejected       = fmt.Errorf("upload rejected")
	ErrUploadFailed         = fmt.Errorf("upload failed")
	ErrUnknownEvent         = fmt.Errorf("unknown event")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrUnknownStoreDriver   = fmt.Errorf("unknown store driver")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAuthenticationFailed, "AuthenticationFailed"},
	{ErrInvalidUsername, "InvalidUsername"},
	{ErrDuplicateConnection, "DuplicateConnection"},
	{ErrConnectionNotFound, "ConnectionNotFound"},
	{ErrProtectedRoom, "ProtectedRoom"},
	{ErrRoomNotFound, "RoomNotFound"},
	{ErrInvalidRoomName, "InvalidRoomName"},
	{ErrMessageNotFound, "MessageNotFound"},
	{ErrEmptyBody, "EmptyBody"},
	{ErrMessageTooLong, "MessageTooLong"},
	{ErrStoreUnavailable, "StoreUnavailable"},
	{ErrUploadRejected, "UploadRejected"},
	{ErrUploadFailed, "UploadFailed"},
	{ErrUnknownEvent, "UnknownEvent"},
	{ErrInvalidPayload, "InvalidPayload"},
}

// Code maps an error to the stable code sent in failure acknowledgements.
func Code(err error) string {
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// Is and As re-export the standard helpers so callers don't need two errors imports.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
