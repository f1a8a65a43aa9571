package models

import (
	"time"

	"github.com/google/uuid"
)

// RawRead represents a single antenna observation as delivered by a
// reader device. Rows are append-only: nothing is ever updated except
// the Processed flag, which transitions false to true exactly once per
// successful pipeline pass. Garbage chip codes and unknown readers are
// valid content; resolution happens later.
type RawRead struct {
	ID             uuid.UUID `db:"id" json:"id" validate:"required,uuid4"`
	EventID        uuid.UUID `db:"event_id" json:"event_id" validate:"required,uuid4"`
	ReaderDeviceID string    `db:"reader_device_id" json:"reader_device_id" validate:"required"`
	ChipCode       string    `db:"chip_code" json:"chip_code" validate:"required"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp" validate:"required"`
	SignalStrength *int      `db:"signal_strength" json:"signal_strength"`
	AntennaPort    *int      `db:"antenna_port" json:"antenna_port"`
	Processed      bool      `db:"processed" json:"processed"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Observation is the wire payload a reader gateway delivers for one
// antenna observation. It carries no identity; the store assigns one.
type Observation struct {
	EventID        uuid.UUID `json:"event_id"`
	ReaderDeviceID string    `json:"reader_device_id"`
	ChipCode       string    `json:"chip_code"`
	TimestampUTC   time.Time `json:"timestamp_utc"`
	SignalStrength *int      `json:"signal_strength,omitempty"`
	AntennaPort    *int      `json:"antenna_port,omitempty"`
}

// NewRawRead builds an append-ready RawRead from a gateway observation.
func NewRawRead(obs Observation) *RawRead {
	return &RawRead{
		ID:             uuid.New(),
		EventID:        obs.EventID,
		ReaderDeviceID: obs.ReaderDeviceID,
		ChipCode:       obs.ChipCode,
		Timestamp:      obs.TimestampUTC.UTC(),
		SignalStrength: obs.SignalStrength,
		AntennaPort:    obs.AntennaPort,
		Processed:      false,
		CreatedAt:      time.Now().UTC(),
	}
}
