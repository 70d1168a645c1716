package protocol

// Failure codes carried in Failure.Code.
const (
	CodeAlreadyLoggedIn = "already_logged_in"
	CodeNotLoggedIn     = "not_logged_in"
	CodeAlreadyInRoom   = "already_in_room"
	CodeNotInRoom       = "not_in_room"
	CodeMessageNotFound = "message_not_found"
	CodeInvalidPayload  = "invalid_payload"
	CodeUnknownEvent    = "unknown_event"
	CodeRateLimited     = "rate_limited"
)
