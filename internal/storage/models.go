package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is a registered WhatsApp contact allowed to talk to the assistant.
// Phone holds the digits-only form of the number (no "+", no JID suffix).
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Active    bool
	CreatedAt time.Time
}

// SensorReading is one soil probe measurement. Field names follow the
// field-station firmware payload, which reports in Portuguese.
type SensorReading struct {
	ID            int64
	Timestamp     time.Time
	Umidade       float64 // soil moisture (%)
	Condutividade float64 // electrical conductivity (µS/cm)
	Temperatura   float64 // temperature (°C)
	PH            float64
	Nitrogenio    float64 // ppm
	Fosforo       float64 // ppm
	Potassio      float64 // ppm
	Salinidade    float64 // ppm
	TDS           float64 // total dissolved solids (ppm)
}

// Interaction is one answered message burst: the joined user text and the
// reply that went back out, kept for auditing and the management API.
type Interaction struct {
	ID         string
	SessionKey string
	Question   string
	Answer     string
	Status     string // "answered", "denied", "failed"
	CreatedAt  time.Time
}

// KBDoc is a knowledge-base document awaiting or holding an embedding.
type KBDoc struct {
	ID        string
	Title     string
	Content   string
	Source    string
	Tags      string // JSON array stored as text
	CreatedAt time.Time
	VectorID  string
}

// Job is a background work item processed by the ingest worker.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// ChatMessage is one turn of agent conversation history for a session.
type ChatMessage struct {
	ID         string
	SessionKey string
	Role       string // "user" or "assistant"
	Content    string
	CreatedAt  time.Time
}
