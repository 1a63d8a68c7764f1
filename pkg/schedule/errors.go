package schedule

import "errors"

var (
	ErrInvalidSchedule      = errors.New("schedule.errors.invalid_schedule")
	ErrJobAlreadyRegistered = errors.New("schedule.errors.job_already_registered")
	ErrNoJobs               = errors.New("schedule.errors.no_jobs")
)
