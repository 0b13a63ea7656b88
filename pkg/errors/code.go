package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Project & Validation errors
// 12000-12999: Execution backend errors
// 13000-13999: Submission & Harness errors
// 14000-14999: Persistence & Collaborator errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// ========== Project & Validation Errors (11000-11999) ==========

	// Project files (11000-11099)
	UnsafeFilePath       ErrorCode = 11000
	DuplicateFilePath    ErrorCode = 11001
	DisallowedExtension  ErrorCode = 11002
	EntryPointMissing    ErrorCode = 11003
	ProjectEmpty         ErrorCode = 11004
	ProjectFileTooLarge  ErrorCode = 11005
	ProjectTooManyFiles  ErrorCode = 11006
	EntryPointNotProject ErrorCode = 11007

	// ========== Execution Backend Errors (12000-12999) ==========

	// Common backend (12000-12099)
	BackendInitFailed    ErrorCode = 12000
	ExecutionTimeout     ErrorCode = 12001
	ExecutionCanceled    ErrorCode = 12002
	RuntimeFault         ErrorCode = 12003
	BackendNotSupported  ErrorCode = 12004
	ExecutionQueueFull   ErrorCode = 12005
	RequestAlreadyQueued ErrorCode = 12006

	// Interpreter backend (12100-12199)
	InterpreterLoadFailed ErrorCode = 12100
	InterpreterBusy       ErrorCode = 12101

	// Remote sandbox backend (12200-12299)
	SandboxUnavailable    ErrorCode = 12200
	SandboxUploadFailed   ErrorCode = 12201
	SandboxInvokeFailed   ErrorCode = 12202
	SandboxReleaseFailed  ErrorCode = 12203
	SandboxTransportError ErrorCode = 12204

	// ========== Submission & Harness Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	SubmissionCanceled     ErrorCode = 13002
	SubmissionTimedOut     ErrorCode = 13003
	EmptyTestList          ErrorCode = 13004

	// Harness & verdicts (13100-13199)
	HarnessBuildFailed ErrorCode = 13100
	NoVerdictProduced  ErrorCode = 13101

	// ========== Persistence & Collaborator Errors (14000-14999) ==========

	// Persistence port (14000-14099)
	PersistenceFailed ErrorCode = 14000
	ArchiveFailed     ErrorCode = 14001

	// Progress port (14100-14199)
	ProgressPublishFailed ErrorCode = 14100
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Project files
	UnsafeFilePath:       "File path is unsafe",
	DuplicateFilePath:    "Duplicate file path in project",
	DisallowedExtension:  "File extension is not allowed",
	EntryPointMissing:    "Entry point is required",
	ProjectEmpty:         "Project has no files",
	ProjectFileTooLarge:  "Project file is too large",
	ProjectTooManyFiles:  "Project has too many files",
	EntryPointNotProject: "Entry point is not part of the project",

	// Execution backend
	BackendInitFailed:    "Execution backend initialization failed",
	ExecutionTimeout:     "Execution timed out",
	ExecutionCanceled:    "Execution was canceled",
	RuntimeFault:         "User code raised a runtime fault",
	BackendNotSupported:  "Execution backend not supported",
	ExecutionQueueFull:   "Execution queue is full, please try again later",
	RequestAlreadyQueued: "Request is already queued",

	// Interpreter backend
	InterpreterLoadFailed: "Interpreter module failed to load",
	InterpreterBusy:       "Interpreter is busy with another execution",

	// Remote sandbox backend
	SandboxUnavailable:    "Sandbox service unavailable",
	SandboxUploadFailed:   "Uploading files to sandbox failed",
	SandboxInvokeFailed:   "Sandbox invocation failed",
	SandboxReleaseFailed:  "Sandbox release failed",
	SandboxTransportError: "Sandbox transport error",

	// Submission & harness
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	SubmissionCanceled:     "Submission was canceled",
	SubmissionTimedOut:     "Submission exceeded its aggregate time budget",
	EmptyTestList:          "At least one test is required",
	HarnessBuildFailed:     "Failed to build test harness",
	NoVerdictProduced:      "Test produced no verdict",

	// Persistence & collaborators
	PersistenceFailed:     "Failed to persist submission record",
	ArchiveFailed:         "Failed to archive submission sources",
	ProgressPublishFailed: "Failed to publish progress event",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == SubmissionNotFound, c == RecordNotFound:
		return 404
	case c == TooManyRequests, c == ExecutionQueueFull:
		return 429
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c >= 11000 && c < 12000: // Project validation errors
		return 400
	case c == InvalidParams, c == EmptyTestList:
		return 400
	default:
		return 500
	}
}
