package errs

import "errors"

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrEmptyBody         = errors.New("message body is empty")
	ErrInvalidRequester  = errors.New("exactly one of requester id or requester email is required")
	ErrInvalidPriority   = errors.New("invalid priority: must be 'low', 'medium', or 'high'")
	ErrInvalidStatus     = errors.New("invalid status: must be 'open', 'in_progress', 'resolved', or 'closed'")
	ErrInvalidSenderType = errors.New("invalid sender type: must be 'user' or 'admin'")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrOperatorRequired  = errors.New("operator reference required")
)
