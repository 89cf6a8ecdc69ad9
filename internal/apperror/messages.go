package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Execution
	CodeInvalidPlan:         "Execution plan is invalid",
	CodeUnsupportedProvider: "Flashloan provider is not supported",
	CodeDuplicateExecution:  "Opportunity is already being executed",
	CodeSigningError:        "Failed to sign transaction",
	CodeNetworkError:        "Node unreachable",
	CodeRPCError:            "Node rejected the request",
	CodeDeadlineExceeded:    "Execution deadline exceeded",
	CodeExecutionCancelled:  "Execution cancelled by caller",
	CodeTxReverted:          "Transaction reverted on chain",

	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeGasEstimationFailed:      "Gas estimation failed",

	// Private relay
	CodeRelayRejected: "Private relay rejected the transaction",

	// Persistence
	CodeJournalError: "Execution journal unavailable",
	CodeGuardError:   "Execution guard unavailable",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
