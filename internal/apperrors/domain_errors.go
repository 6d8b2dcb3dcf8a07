package apperrors

var (
	// Domain errors returned by the service layer
	ErrUnauthenticated       = Unauthorized("authentication required")
	ErrSelfRequest           = InvalidArg("cannot send a friend request to yourself")
	ErrAlreadyFriends        = AlreadyExists("already friends")
	ErrRequestAlreadyPending = AlreadyExists("friend request already pending")
	ErrNoSuchRequest         = NotFound("no pending friend request")
	ErrNotRecipient          = Forbidden("only the recipient can respond to this request")
	ErrNotAuthorized         = Forbidden("not a friend or member of this conversation")
	ErrNotGroupAdmin         = Forbidden("group admin rights required")
	ErrGroupNotFound         = NotFound("group not found")
	ErrMessageNotFound       = NotFound("message not found")
	ErrNotMessageSender      = Forbidden("only the sender can delete this message")
	ErrEmptyBody             = InvalidArg("message body is required")
	ErrInvalidTarget         = InvalidArg("exactly one of peer_id or group_id is required")
	ErrInvalidStatus         = InvalidArg("status must be online, away or offline")
	ErrInvalidTopic          = InvalidArg("unknown topic")
	ErrAlreadyMember         = AlreadyExists("already a group member")
	ErrNotMember             = NotFound("not a group member")
	ErrUnreachable           = Unavailable("subscriber unreachable")
	ErrDeliveryAtomicity     = New(CodeAborted, "message not sent, please retry")
	ErrSendTimeout           = New(CodeDeadlineExceeded, "message not sent, please retry")
)

// DeliveryAtomicity reports a group send whose ledger entries could not all
// be written. The whole send has been rolled back.
func DeliveryAtomicity(cause error) error {
	return Wrap(CodeAborted, "message not sent, please retry", cause)
}

func SendTimeout(cause error) error {
	return Wrap(CodeDeadlineExceeded, "message not sent, please retry", cause)
}
