package kuchikomi

import "fmt"

// DataError reports a degenerate corpus: no reviews, an empty vocabulary
// after document-frequency filtering, or a cluster count larger than the
// number of distinct documents. It aborts the current stage.
type DataError struct {
	Stage  string
	Docs   int
	Detail string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s (documents=%d)", e.Stage, e.Detail, e.Docs)
}

// ConfigError reports an invalid configuration value. The pipeline never
// substitutes a default for an explicitly misconfigured parameter.
type ConfigError struct {
	Param  string
	Value  any
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Param, e.Value, e.Detail)
}

// ResourceError reports that building a dense intermediate would exceed
// the configured memory budget.
type ResourceError struct {
	What  string
	Need  int64
	Limit int64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s requires %d bytes, budget is %d bytes", e.What, e.Need, e.Limit)
}
