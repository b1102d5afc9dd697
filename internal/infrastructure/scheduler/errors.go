package scheduler

import "errors"

var (
	// ErrPoolNotRunning is returned when work is submitted to a stopped pool
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrInvalidSchedule is returned for a cron expression that does not parse
	ErrInvalidSchedule = errors.New("invalid cron schedule")
)
