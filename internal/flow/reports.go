package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

// Reports renders the two read-only owner reports.
type Reports struct {
	store         PatientStore
	digest        Digester
	digestTimeout time.Duration
	logger        *zap.Logger
}

// NewReports creates Reports backed by store.
func NewReports(store PatientStore, opts ...Option) *Reports {
	return newReports(store, buildOpts(opts))
}

func newReports(store PatientStore, cfg Opts) *Reports {
	return &Reports{
		store:         store,
		digest:        cfg.Digester,
		digestTimeout: cfg.DigestTimeout,
		logger:        cfg.Logger.Named("reports"),
	}
}

// Today lists the owner's patients seen today.
func (r *Reports) Today(ctx context.Context, ownerID int64) []Reply {
	rows, err := r.store.GetTodayPatients(ctx, ownerID)
	if err != nil {
		r.logger.Error("Reports Today failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return []Reply{textReply(msgReportError), menuReply()}
	}
	r.logger.Debug("Reports Today succeeded", zap.Int64("owner_id", ownerID), zap.Int("rows", len(rows)))
	return []Reply{textReply(FormatToday(rows)), menuReply()}
}

// Week shows the weekday histogram for the trailing seven days, followed by a
// generated digest when a Digester is configured.
func (r *Reports) Week(ctx context.Context, ownerID int64) []Reply {
	stats, err := r.store.GetWeeklyStats(ctx, ownerID)
	if err != nil {
		r.logger.Error("Reports Week failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		return []Reply{textReply(msgReportError), menuReply()}
	}
	r.logger.Debug("Reports Week succeeded", zap.Int64("owner_id", ownerID), zap.Int("buckets", len(stats)))

	replies := []Reply{textReply(FormatWeek(stats))}
	if r.digest != nil && len(stats) > 0 {
		dctx, cancel := context.WithTimeout(ctx, r.digestTimeout)
		text, err := r.digest.WeeklyDigest(dctx, stats)
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("Reports Week digest failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		case strings.TrimSpace(text) != "":
			replies = append(replies, textReply(strings.TrimSpace(text)))
		}
	}
	return append(replies, menuReply())
}

// FormatToday renders the today's-patients report.
func FormatToday(rows []models.TodayPatient) string {
	if len(rows) == 0 {
		return msgTodayEmpty
	}
	var b strings.Builder
	b.WriteString(msgTodayHeader)
	for _, p := range rows {
		b.WriteString("\n")
		fmt.Fprintf(&b, msgTodayLine, p.FullName, p.BirthDate.Format(models.DateLayout))
	}
	return b.String()
}

// FormatWeek renders the weekly histogram. Buckets are printed in the order given.
func FormatWeek(stats []models.WeekdayCount) string {
	if len(stats) == 0 {
		return msgWeekEmpty
	}
	var b strings.Builder
	b.WriteString(msgWeekHeader)
	for _, s := range stats {
		b.WriteString("\n")
		fmt.Fprintf(&b, msgWeekLine, WeekdayName(s.Weekday), s.Count)
	}
	return b.String()
}

// WeekdayName maps 0 = Sunday .. 6 = Saturday to a display name.
func WeekdayName(weekday int) string {
	if weekday < 0 || weekday >= len(weekdayNames) {
		return fmt.Sprintf("day %d", weekday)
	}
	return weekdayNames[weekday]
}
