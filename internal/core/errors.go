package core

// Error codes for domain errors.
const (
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeNameTaken       = "name_taken"
	ErrCodeBanned          = "banned"
	ErrCodeRoomLocked      = "room_locked"
	ErrCodeNotSpeaking     = "not_speaking"
	ErrCodeUnknownUser     = "unknown_user"
	ErrCodeUnsupportedFile = "unsupported_file_type"
	ErrCodeBadRequest      = "bad_request"
)

// CoreError wraps a code and human-readable message. Errors are always
// delivered to the originating session only; they never tear down the
// room event loop.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
