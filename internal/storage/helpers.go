package storage

import (
	"database/sql"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toSampleData(sessionID int64, r SampleRecord) *sampleData {
	var utilization sql.NullFloat64
	if r.Utilization != nil {
		utilization.Float64 = *r.Utilization
		utilization.Valid = true
	}

	return &sampleData{
		SessionID:   sessionID,
		Cycle:       r.Cycle.UTC(),
		Timestamp:   r.Timestamp.UTC(),
		Metric:      r.Metric,
		Frequency:   r.FrequencyHz,
		Modulation:  r.Modulation,
		Locked:      r.Locked,
		SNR:         r.SNR,
		Bitrate:     r.Bitrate,
		Utilization: utilization,
	}
}

func fromSampleData(d *sampleData) SampleRecord {
	r := SampleRecord{
		Cycle:       d.Cycle,
		Timestamp:   d.Timestamp,
		Metric:      d.Metric,
		FrequencyHz: d.Frequency,
		Modulation:  d.Modulation,
		Locked:      d.Locked,
		SNR:         d.SNR,
		Bitrate:     d.Bitrate,
	}
	if d.Utilization.Valid {
		r.Utilization = &d.Utilization.Float64
	}
	return r
}
