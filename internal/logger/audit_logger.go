// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger records privileged operator actions against the timing
// state machine: manual entries, finalization, disqualifications.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogManualEntry logs an operator-supplied crossing.
func (al *AuditLogger) LogManualEntry(eventID, participantID, checkpointID string, chipTime time.Time, reason, enteredBy string) {
	al.WithFields(logrus.Fields{
		"event_id":       eventID,
		"participant_id": participantID,
		"checkpoint_id":  checkpointID,
		"chip_time":      chipTime.UTC().Format(time.RFC3339Nano),
		"reason":         reason,
		"entered_by":     enteredBy,
	}).Info("Manual timing entry recorded")
}

// LogFinalize logs a finalize or un-finalize action on a race.
func (al *AuditLogger) LogFinalize(eventID, raceID string, official bool, actor string) {
	al.WithFields(logrus.Fields{
		"event_id": eventID,
		"race_id":  raceID,
		"official": official,
		"actor":    actor,
	}).Info("Race results finalization changed")
}

// LogDisqualification logs an operator disqualification.
func (al *AuditLogger) LogDisqualification(eventID, participantID, reason, actor string) {
	al.WithFields(logrus.Fields{
		"event_id":       eventID,
		"participant_id": participantID,
		"reason":         reason,
		"actor":          actor,
	}).Warn("Participant disqualified")
}

// LogAnomalyResolution logs an operator resolving a flagged timing anomaly.
func (al *AuditLogger) LogAnomalyResolution(anomalyID, actor string) {
	al.WithFields(logrus.Fields{
		"anomaly_id": anomalyID,
		"actor":      actor,
	}).Info("Timing anomaly resolved")
}
