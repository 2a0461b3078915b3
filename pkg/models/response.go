package models

import "time"

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ListResponse struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data"`
	Count     int        `json:"count"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type ItemResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}
