package core

// Exit codes for the CLI.
// Signal-based exits follow the Unix 128 + signal number convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	// ExitCodeUsage is returned when a command precondition fails, such as
	// an empty credential pool or no usable prompts.
	ExitCodeUsage   = 2
	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)
