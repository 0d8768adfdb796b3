package domain

import "time"

// Status is the cached view of a game's container state. It is only as fresh
// as ReconciledAt on the owning Game.
type Status string

const (
	StatusNotCreated Status = "NOTCREATED"
	StatusStopped    Status = "STOPPED"
	StatusRunning    Status = "RUNNING"
)

// Game is a directory served by a port-bound container.
type Game struct {
	ID            int64     `json:"id"`
	Directory     string    `json:"directory"`
	Port          int       `json:"port"`
	ContainerName string    `json:"container_name"`
	Image         string    `json:"image"`
	Status        Status    `json:"status"`
	ReconciledAt  time.Time `json:"reconciled_at,omitempty"` // zero until the first start/stop/reconcile
}

// GameDirectory is a content root that has been checked for its entry marker.
// Only services.ValidateDirectory hands out Verified values.
type GameDirectory struct {
	Path     string
	Verified bool
}
