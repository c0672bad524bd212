package types

// Decision is the outcome of a rate-limit admission check.
type Decision struct {
	Allowed      bool   // whether the request may proceed
	Remaining    int64  // tokens left after this check
	Limit        int64  // bucket capacity of the matched rule
	RetryAfterMs int64  // suggested retry delay in milliseconds (denials only)
	Reason       string // machine-readable outcome reason
	Err          error  // error information, if any
}
