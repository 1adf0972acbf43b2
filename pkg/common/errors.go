package common

import (
	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

// Stage identifies the pipeline stage that produced an error or warning
type Stage string

const (
	StageDecode     Stage = "decode"
	StageExtraction Stage = "extraction"
	StageSelection  Stage = "selection"
	StagePCA        Stage = "pca"
	StageKMeans     Stage = "kmeans"
)

// Common error codes
const (
	ErrCodeDecode           = "DECODE_FAILED"
	ErrCodeNoAudioChannel   = "NO_AUDIO_CHANNEL"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeEmptyTrainingSet = "EMPTY_TRAINING_SET"
	ErrCodeInsufficientData = "INSUFFICIENT_DATA"
	ErrCodeNumerical        = "NUMERICAL_FAILURE"
)

// Sentinels for errors.Is; they match any AnalysisError carrying the same code.
var (
	ErrDecode           = &AnalysisError{Code: ErrCodeDecode, Message: "audio source could not be decoded"}
	ErrNoAudioChannel   = &AnalysisError{Code: ErrCodeNoAudioChannel, Message: "audio source has no channel"}
	ErrInvalidConfig    = &AnalysisError{Code: ErrCodeInvalidConfig, Message: "invalid configuration"}
	ErrInvalidInput     = &AnalysisError{Code: ErrCodeInvalidInput, Message: "invalid input matrix"}
	ErrEmptyTrainingSet = &AnalysisError{Code: ErrCodeEmptyTrainingSet, Message: "no frames survived filtering"}
	ErrInsufficientData = &AnalysisError{Code: ErrCodeInsufficientData, Message: "fewer rows than clusters"}
	ErrNumerical        = &AnalysisError{Code: ErrCodeNumerical, Message: "model contains non-finite values"}
)

// AnalysisError represents a fatal error of one pipeline stage
type AnalysisError struct {
	Stage   Stage          `json:"stage"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  logging.Fields `json:"fields,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AnalysisError with the same code
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewAnalysisError creates a new analysis error
func NewAnalysisError(stage Stage, code, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Stage:   stage,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAnalysisErrorWithFields creates a new analysis error carrying diagnostic
// context (counts, thresholds) for the caller to adjust configuration
func NewAnalysisErrorWithFields(stage Stage, code, message string, cause error, fields logging.Fields) *AnalysisError {
	err := NewAnalysisError(stage, code, message, cause)
	err.Fields = fields
	return err
}

// InvalidConfig is shorthand for an INVALID_CONFIG error
func InvalidConfig(stage Stage, message string, fields logging.Fields) *AnalysisError {
	return NewAnalysisErrorWithFields(stage, ErrCodeInvalidConfig, message, nil, fields)
}

// InvalidInput is shorthand for an INVALID_INPUT error
func InvalidInput(stage Stage, message string, fields logging.Fields) *AnalysisError {
	return NewAnalysisErrorWithFields(stage, ErrCodeInvalidInput, message, nil, fields)
}
