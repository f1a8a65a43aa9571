package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/finish-line/internal/models"
)

// Normalizer converts an accepted, attributed raw read into a
// NormalizedRead: wall-clock chip time kept verbatim, gun time relative
// to the race start, net time relative to the participant's own start
// crossing.
type Normalizer struct {
	logger *logrus.Entry
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.WithField("component", "normalizer"),
	}
}

// Normalize builds the crossing for an accepted raw read. gunStart is
// the race's gun time (nil before the gun), participantStart the chip
// time of the participant's own start-line crossing (nil until one
// exists, which leaves net time unset).
func (n *Normalizer) Normalize(
	read *models.RawRead,
	participantID, checkpointID uuid.UUID,
	loopIndex int,
	gunStart *time.Time,
	participantStart *time.Time,
) *models.NormalizedRead {
	nr := &models.NormalizedRead{
		ID:            uuid.New(),
		EventID:       read.EventID,
		ParticipantID: participantID,
		CheckpointID:  checkpointID,
		RawReadID:     &read.ID,
		LoopIndex:     loopIndex,
		ChipTime:      read.Timestamp,
		IsManualEntry: false,
		CreatedAt:     time.Now().UTC(),
	}

	nr.GunTimeMs = gunTimeMs(read.Timestamp, gunStart)
	nr.NetTimeMs = netTimeMs(read.Timestamp, participantStart)

	return nr
}

// NormalizeManual builds an operator-supplied crossing with no raw read
// evidence. The reason is mandatory and validated by the caller.
func (n *Normalizer) NormalizeManual(
	eventID, participantID, checkpointID uuid.UUID,
	loopIndex int,
	chipTime time.Time,
	reason string,
	gunStart *time.Time,
	participantStart *time.Time,
) *models.NormalizedRead {
	nr := &models.NormalizedRead{
		ID:                uuid.New(),
		EventID:           eventID,
		ParticipantID:     participantID,
		CheckpointID:      checkpointID,
		LoopIndex:         loopIndex,
		ChipTime:          chipTime,
		IsManualEntry:     true,
		ManualEntryReason: &reason,
		CreatedAt:         time.Now().UTC(),
	}

	nr.GunTimeMs = gunTimeMs(chipTime, gunStart)
	nr.NetTimeMs = netTimeMs(chipTime, participantStart)

	return nr
}

// gunTimeMs computes the elapsed time since the gun, floored at zero so
// an early start-mat crossing never goes negative.
func gunTimeMs(chipTime time.Time, gunStart *time.Time) *int64 {
	if gunStart == nil {
		return nil
	}
	ms := chipTime.Sub(*gunStart).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ms
}

// netTimeMs computes the elapsed time since the participant's own start
// crossing. Nil until a start crossing exists.
func netTimeMs(chipTime time.Time, participantStart *time.Time) *int64 {
	if participantStart == nil {
		return nil
	}
	ms := chipTime.Sub(*participantStart).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ms
}
