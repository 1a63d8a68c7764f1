// Package schedule runs periodic jobs inside the process.
//
//	r := schedule.NewRunner(schedule.WithLogger(log))
//	daily, _ := schedule.ParseDailyAt("03:00")
//	_ = r.Add("daily-checks", daily, func(ctx context.Context) error {
//		_, err := scheduler.RunDailyChecks(ctx)
//		return err
//	})
//	err := r.Run(ctx) // blocks until ctx is cancelled
//
// Job errors and panics are logged and never stop the runner.
package schedule
