package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/finish-line/internal/models"
)

func TestNormalizeComputesGunAndNetTimes(t *testing.T) {
	n := NewNormalizer(logrus.New())

	gun := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	ownStart := gun.Add(90 * time.Second) // crossed the mat 90s after the gun
	chipTime := gun.Add(25 * time.Minute)

	read := &models.RawRead{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		ChipCode:  "CHIP042",
		Timestamp: chipTime,
	}

	crossing := n.Normalize(read, uuid.New(), uuid.New(), 0, &gun, &ownStart)

	assert.Equal(t, chipTime, crossing.ChipTime)
	require.NotNil(t, crossing.GunTimeMs)
	assert.Equal(t, int64(25*60*1000), *crossing.GunTimeMs)
	require.NotNil(t, crossing.NetTimeMs)
	assert.Equal(t, int64(25*60*1000-90*1000), *crossing.NetTimeMs)
	assert.False(t, crossing.IsManualEntry)
	require.NotNil(t, crossing.RawReadID)
	assert.Equal(t, read.ID, *crossing.RawReadID)
}

func TestNormalizeBeforeGun(t *testing.T) {
	n := NewNormalizer(logrus.New())

	read := &models.RawRead{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		Timestamp: time.Date(2026, 6, 14, 8, 59, 0, 0, time.UTC),
	}

	// no gun yet: both relative times stay unset
	crossing := n.Normalize(read, uuid.New(), uuid.New(), 0, nil, nil)
	assert.Nil(t, crossing.GunTimeMs)
	assert.Nil(t, crossing.NetTimeMs)

	// early start-mat crossing never goes negative
	gun := read.Timestamp.Add(30 * time.Second)
	crossing = n.Normalize(read, uuid.New(), uuid.New(), 0, &gun, nil)
	require.NotNil(t, crossing.GunTimeMs)
	assert.Equal(t, int64(0), *crossing.GunTimeMs)
}

func TestNormalizeWithoutOwnStartLeavesNetUnset(t *testing.T) {
	n := NewNormalizer(logrus.New())

	gun := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	read := &models.RawRead{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		Timestamp: gun.Add(10 * time.Minute),
	}

	crossing := n.Normalize(read, uuid.New(), uuid.New(), 0, &gun, nil)
	require.NotNil(t, crossing.GunTimeMs)
	assert.Nil(t, crossing.NetTimeMs)
}

func TestNormalizeManualCarriesReason(t *testing.T) {
	n := NewNormalizer(logrus.New())

	gun := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	chipTime := gun.Add(42 * time.Minute)

	crossing := n.NormalizeManual(
		uuid.New(), uuid.New(), uuid.New(),
		1, chipTime, "mat failed, time from backup camera",
		&gun, nil,
	)

	assert.True(t, crossing.IsManualEntry)
	require.NotNil(t, crossing.ManualEntryReason)
	assert.Equal(t, "mat failed, time from backup camera", *crossing.ManualEntryReason)
	assert.Nil(t, crossing.RawReadID)
	assert.Equal(t, 1, crossing.LoopIndex)
	require.NotNil(t, crossing.GunTimeMs)
	assert.Equal(t, int64(42*60*1000), *crossing.GunTimeMs)
}
