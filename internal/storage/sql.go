package storage

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

//go:embed indexes.sql
var indexesSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      adapter,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    adapter,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    adapter,
    config
FROM sessions
ORDER BY start_time`

	insertSampleSQL = `
    INSERT INTO samples (
        session_id,
        cycle,
        timestamp,
        metric,
        frequency,
        modulation,
        locked,
        snr,
        bitrate,
        utilization
    )
    VALUES `

	selectSamplesSQL = `
SELECT
    cycle,
    timestamp,
    metric,
    frequency,
    modulation,
    locked,
    snr,
    bitrate,
    utilization
FROM samples
WHERE
    session_id = ?
    AND cycle BETWEEN ? AND ?
ORDER BY cycle, frequency`

	selectCycleRangeSQL = `
SELECT
    MIN(cycle),
    MAX(cycle)
FROM samples
WHERE session_id = ?`
)
