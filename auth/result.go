package auth

// Result is the outcome of SignIn and SignOut. Neither ever returns an error
// or panics; failures are reported here.
type Result struct {
	Success bool
	Error   string // User-facing message, empty on success
	Err     error  // Underlying error for errors.Is, nil on success
}

func succeeded() Result {
	return Result{Success: true}
}

func failed(err error) Result {
	return Result{Error: err.Error(), Err: err}
}
