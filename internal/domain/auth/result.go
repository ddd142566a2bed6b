package auth

// Result is what login/register/logout hand back to callers. Failures are values,
// never panics; callers must check Success before proceeding.
type Result struct {
	Success bool      `json:"success"`
	Kind    ErrorKind `json:"errorKind,omitempty"`
	Message string    `json:"message,omitempty"`
	// User is the created identity on a successful registration.
	User *Identity `json:"data,omitempty"`
	// Err keeps the raw backend error for diagnostics; it is not serialized.
	Err error `json:"-"`
}

// Succeeded returns a successful Result.
func Succeeded() Result { return Result{Success: true} }

// Failed classifies err for op and returns the failure Result.
func Failed(op Operation, err error) Result {
	kind := Classify(op, err)
	if kind == ErrorKindNone {
		kind = ErrorKindUnknown
	}
	return Result{
		Success: false,
		Kind:    kind,
		Message: Message(kind, err),
		Err:     err,
	}
}
