// Package errors provides structured error handling for citematch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (rejected eagerly, before the pipeline runs)
//   - 2XX: Index/storage errors (vector index, paper store)
//   - 3XX: Network errors (oracle, embedder, reranker services)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIndex indicates vector-index and paper-store errors.
	CategoryIndex Category = "INDEX"
	// CategoryNetwork indicates oracle/embedder/reranker service errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeInvalidWeights = "ERR_103_INVALID_WEIGHTS"

	// Index/storage errors (200-299)
	ErrCodeIndexUnavailable = "ERR_201_INDEX_UNAVAILABLE"
	ErrCodeIndexCorrupt     = "ERR_202_INDEX_CORRUPT"
	ErrCodeStoreFailed      = "ERR_203_STORE_FAILED"
	ErrCodePaperNotFound    = "ERR_204_PAPER_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeOracleUnreachable = "ERR_301_ORACLE_UNREACHABLE"
	ErrCodeOracleMalformed   = "ERR_302_ORACLE_MALFORMED"
	ErrCodeEmbedderDown      = "ERR_303_EMBEDDER_UNAVAILABLE"
	ErrCodeRerankerDown      = "ERR_304_RERANKER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeRankingFailed   = "ERR_504_RANKING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIndex
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Config errors are fatal (rejected at setup); index and network errors are
// warnings because every consumer degrades rather than aborts.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryIndex, CategoryNetwork:
		return SeverityWarning
	case CategoryValidation:
		return SeverityError
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether an operation failing with this code may
// succeed on retry. Only transient network failures qualify.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeOracleUnreachable, ErrCodeEmbedderDown, ErrCodeRerankerDown:
		return true
	default:
		return false
	}
}
