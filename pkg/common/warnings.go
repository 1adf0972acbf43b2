package common

import "fmt"

// Warning codes
const (
	WarnCodeDegenerateModel = "DEGENERATE_MODEL"
	WarnCodeFFTSizeRounded  = "FFT_SIZE_ROUNDED"
	WarnCodeEmptyCluster    = "EMPTY_CLUSTER_RESEEDED"
	WarnCodeBatchFallback   = "BATCH_FALLBACK"
	WarnCodeRangeTruncated  = "RANGE_TRUNCATED"
)

// Warning is a non-fatal condition recorded on a result instead of failing the run
type Warning struct {
	Stage   Stage          `json:"stage" yaml:"stage" msgpack:"stage"`
	Code    string         `json:"code" yaml:"code" msgpack:"code"`
	Message string         `json:"message" yaml:"message" msgpack:"message"`
	Fields  map[string]any `json:"fields,omitempty" yaml:"fields,omitempty" msgpack:"fields,omitempty"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s/%s: %s", w.Stage, w.Code, w.Message)
}

// DegenerateModelWarning records components or centroids that were found
// non-finite or collapsed
func DegenerateModelWarning(stage Stage, message string, indices []int, repaired bool) Warning {
	return Warning{
		Stage:   stage,
		Code:    WarnCodeDegenerateModel,
		Message: message,
		Fields: map[string]any{
			"indices":  indices,
			"repaired": repaired,
		},
	}
}

// HasWarning reports whether any warning in ws carries code
func HasWarning(ws []Warning, code string) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}
