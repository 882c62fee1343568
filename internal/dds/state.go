package dds

import (
	"sync"
	"time"
)

// Registration status values for the external registration state machine
// ({Disconnected -> Registering -> Registered -> Disconnected}). Within the
// node, only the registration handler changes it, setting Registered when
// it accepts a secret; /health does not report it.
const (
	StatusDisconnected = "disconnected"
	StatusRegistering  = "registering"
	StatusRegistered   = "registered"
)

type RegistrationState struct {
	Status          string
	LastHealthcheck *time.Time
}

var (
	stateMu sync.Mutex
	state   = RegistrationState{Status: StatusDisconnected}
)

func ReadState() RegistrationState {
	stateMu.Lock()
	defer stateMu.Unlock()
	return state
}

func WriteState(s RegistrationState) {
	stateMu.Lock()
	defer stateMu.Unlock()
	state = s
}

func SetStatus(status string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	state.Status = status
}
