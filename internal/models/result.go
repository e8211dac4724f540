package models

import "math"

// Result is the job output. Failures only carry Success and Error.
type Result struct {
	Success       bool     `json:"success"`
	DepthMap      string   `json:"depth_map,omitempty"`
	DepthMapURL   string   `json:"depth_map_url,omitempty"`
	OriginalSize  []int    `json:"original_size,omitempty"`
	DepthShape    []int    `json:"depth_shape,omitempty"`
	InferenceTime *float64 `json:"inference_time,omitempty"`
	TotalTime     *float64 `json:"total_time,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func Failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// Seconds rounds to two decimal places for the timing fields.
func Seconds(s float64) *float64 {
	r := math.Round(s*100) / 100
	return &r
}
