package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/issuetrail/internal/monitoring"
)

const defaultMaintenanceMaxAge = 26 * time.Hour

// JobSource exposes the latest run of each background job.
type JobSource interface {
	Jobs() []monitoring.JobRun
}

// Maintenance degrades when a background job keeps failing or has not run
// within maxAge. Zero maxAge covers the daily audit schedule with some slack.
func Maintenance(source JobSource, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		if source == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var problems []string

		for _, job := range source.Jobs() {
			if job.TotalRuns == 0 {
				continue
			}
			if job.ConsecutiveFailures > 0 {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": "+job.LastError)
			}
			if now.Sub(job.LastRunAt) > maxAge {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}
