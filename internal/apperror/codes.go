package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Execution error codes. Each maps one-to-one onto a reported error kind.
const (
	// Plan rejected before any node interaction
	CodeInvalidPlan         Code = "INVALID_PLAN"
	CodeUnsupportedProvider Code = "UNSUPPORTED_PROVIDER"
	CodeDuplicateExecution  Code = "DUPLICATE_EXECUTION"

	// Key material and signing
	CodeSigningError Code = "SIGNING_ERROR"

	// Node interaction
	CodeNetworkError Code = "NETWORK_ERROR"
	CodeRPCError     Code = "RPC_ERROR"

	// Terminal outcomes
	CodeDeadlineExceeded   Code = "DEADLINE_EXCEEDED"
	CodeExecutionCancelled Code = "EXECUTION_CANCELLED"
	CodeTxReverted         Code = "TX_REVERTED"
)

// Infrastructure error codes
const (
	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"

	// Private relay
	CodeRelayRejected Code = "RELAY_REJECTED"

	// Persistence
	CodeJournalError Code = "JOURNAL_ERROR"
	CodeGuardError   Code = "GUARD_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
