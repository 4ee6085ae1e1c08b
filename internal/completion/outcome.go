package completion

// Status names an Outcome variant.
type Status int

const (
	StatusOK Status = iota
	StatusTooLong
	StatusInvalidRequest
	StatusOtherError
	StatusModerationFlagged
	StatusModerationBlocked
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTooLong:
		return "too_long"
	case StatusInvalidRequest:
		return "invalid_request"
	case StatusOtherError:
		return "other_error"
	case StatusModerationFlagged:
		return "moderation_flagged"
	case StatusModerationBlocked:
		return "moderation_blocked"
	default:
		return "unknown"
	}
}

// Outcome is the terminal classification of one generation attempt.
// The set of implementations is closed: OK, TooLong, InvalidRequest,
// OtherError, Flagged and Blocked.
type Outcome interface {
	Status() Status
	// StatusText is the diagnostic or category detail; empty for OK.
	StatusText() string
	outcome()
}

// responsePrefix marks categories matched on the prompt+reply span.
const responsePrefix = "from_response:"

// OK is a successful generation. An empty Reply means the backend
// returned no text.
type OK struct {
	Reply string
}

// TooLong means the history cannot fit the model's context.
type TooLong struct {
	Detail string
}

// InvalidRequest means the backend rejected the request as malformed.
type InvalidRequest struct {
	Detail string
}

// OtherError covers transport failures, timeouts, moderation failures and
// anything unclassified.
type OtherError struct {
	Detail string
}

// Flagged is a reply delivered with a moderation warning.
type Flagged struct {
	Reply      string
	Categories string
}

// Blocked is a reply withheld by moderation. Suppressed is kept for the
// moderation log and must never be sent to the thread.
type Blocked struct {
	Suppressed string
	Categories string
}

func (OK) Status() Status             { return StatusOK }
func (TooLong) Status() Status        { return StatusTooLong }
func (InvalidRequest) Status() Status { return StatusInvalidRequest }
func (OtherError) Status() Status     { return StatusOtherError }
func (Flagged) Status() Status        { return StatusModerationFlagged }
func (Blocked) Status() Status        { return StatusModerationBlocked }

func (OK) StatusText() string               { return "" }
func (o TooLong) StatusText() string        { return o.Detail }
func (o InvalidRequest) StatusText() string { return o.Detail }
func (o OtherError) StatusText() string     { return o.Detail }
func (o Flagged) StatusText() string        { return responsePrefix + o.Categories }
func (o Blocked) StatusText() string        { return responsePrefix + o.Categories }

func (OK) outcome()             {}
func (TooLong) outcome()        {}
func (InvalidRequest) outcome() {}
func (OtherError) outcome()     {}
func (Flagged) outcome()        {}
func (Blocked) outcome()        {}
