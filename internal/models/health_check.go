package models

import "time"

type HealthCheck struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Model     *ModelStatus      `json:"model,omitempty"`
}

type ModelStatus struct {
	Name     string  `json:"name"`
	Device   string  `json:"device,omitempty"`
	Loaded   bool    `json:"loaded"`
	LoadTime float64 `json:"load_time,omitempty"`
}
