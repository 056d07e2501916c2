package models

import "time"

// Brand is one publication in the brand directory, keyed by its Piano
// application id.
type Brand struct {
	AID  string `json:"aid"`
	Name string `json:"name"`
}

// CapturedToken is a bearer token observed on an intercepted request.
type CapturedToken struct {
	Token      string    `json:"token"`
	CapturedAt time.Time `json:"capturedAt"`
}
