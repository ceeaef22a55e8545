package orchestrator

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mlvd/dirsave/internal/config"
	"github.com/mlvd/dirsave/internal/retention"
	"github.com/mlvd/dirsave/pkg/utils"
)

var titleCaser = cases.Title(language.English)

// decisionLabel renders a retention decision for the report,
// e.g. "kept-monthly" -> "Kept Monthly".
func decisionLabel(d retention.Decision) string {
	return titleCaser.String(strings.ReplaceAll(string(d), "-", " "))
}

func (o *Orchestrator) logRetentionPlan(job config.Job, daily, weekly, monthly int, result retention.Result) {
	o.logger.Info("Retention policy for job %q: daily=%d, weekly=%d, monthly=%d",
		job.Name, daily, weekly, monthly)

	for _, kept := range result.Kept {
		o.logger.Debug("  %s: %s", decisionLabel(kept.Decision), kept.Record.Identifier)
	}
	for _, rec := range result.ToDelete {
		o.logger.Debug("  %s: %s", decisionLabel(retention.DecisionDelete), rec.Identifier)
	}

	o.logger.Info("Retention plan: %d kept, %d to delete",
		len(result.Kept), len(result.ToDelete))
}

func (o *Orchestrator) logSummary(stats *JobStats) {
	o.logger.Step("Job %q summary", stats.Job)
	o.logger.Info("  Archive: %s", stats.Identifier)
	if stats.Uploaded {
		o.logger.Info("  Uploaded: %s", utils.FormatBytes(stats.ArchiveSize))
	}
	o.logger.Info("  Kept: %d daily, %d weekly, %d monthly",
		stats.KeptDaily, stats.KeptWeekly, stats.KeptMonthly)
	switch {
	case stats.DeletionsSkipped:
		o.logger.Info("  Deletions: skipped")
	case stats.DeleteFailed > 0:
		o.logger.Info("  Deleted: %d (%d failed)", stats.Deleted, stats.DeleteFailed)
	default:
		o.logger.Info("  Deleted: %d", stats.Deleted)
	}
	o.logger.Info("  Duration: %s", stats.Duration().Round(time.Millisecond))
}
