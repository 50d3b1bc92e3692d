package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"
	"SignalDesk/pkg/util"
)

const (
	JobDailyScreen      = "daily_screen"
	JobRankPending      = "rank_pending"
	JobLifecycleRefresh = "lifecycle_refresh"
)

// JobPayload is shared by all job types. An empty date means today.
type JobPayload struct {
	Date   string `json:"date,omitempty"`
	Market string `json:"market,omitempty"`
}

func (p JobPayload) day(now time.Time) (time.Time, error) {
	if p.Date == "" {
		return util.Day(now), nil
	}
	d, ok := util.ParseDate(p.Date)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q", p.Date)
	}
	return d, nil
}

type DailyScreenJob struct {
	pipeline *PipelineService
	now      func() time.Time
}

func NewDailyScreenJob(pipeline *PipelineService) *DailyScreenJob {
	return &DailyScreenJob{pipeline: pipeline, now: time.Now}
}

func (j *DailyScreenJob) Type() string { return JobDailyScreen }

func (j *DailyScreenJob) Handle(ctx context.Context, raw json.RawMessage) error {
	p, err := queue.Decode[JobPayload](raw)
	if err != nil {
		return err
	}
	date, err := p.day(j.now())
	if err != nil {
		return err
	}
	_, err = j.pipeline.RunDaily(ctx, date, domrepo.Market(p.Market))
	return err
}

type RankPendingJob struct {
	ranking *RankingService
	now     func() time.Time
}

func NewRankPendingJob(ranking *RankingService) *RankPendingJob {
	return &RankPendingJob{ranking: ranking, now: time.Now}
}

func (j *RankPendingJob) Type() string { return JobRankPending }

func (j *RankPendingJob) Handle(ctx context.Context, raw json.RawMessage) error {
	p, err := queue.Decode[JobPayload](raw)
	if err != nil {
		return err
	}
	date, err := p.day(j.now())
	if err != nil {
		return err
	}
	_, err = j.ranking.RankPending(ctx, date)
	return err
}

type LifecycleRefreshJob struct {
	lifecycle *LifecycleService
	lgr       *applogger.Logger
}

func NewLifecycleRefreshJob(lifecycle *LifecycleService, lgr *applogger.Logger) *LifecycleRefreshJob {
	return &LifecycleRefreshJob{lifecycle: lifecycle, lgr: lgr}
}

func (j *LifecycleRefreshJob) Type() string { return JobLifecycleRefresh }

func (j *LifecycleRefreshJob) Handle(ctx context.Context, _ json.RawMessage) error {
	results, err := j.lifecycle.Refresh(ctx)
	for step, r := range results {
		if r.Failed > 0 {
			j.lgr.Warn("lifecycle step had failures",
				applogger.String("step", step),
				applogger.Int("failed", r.Failed),
				applogger.Strings("symbols", r.FailedSyms))
		}
	}
	return err
}

// Jobs lists every background job, for queue registration.
func Jobs(pipeline *PipelineService, ranking *RankingService, lifecycle *LifecycleService, lgr *applogger.Logger) []queue.Job {
	return []queue.Job{
		NewDailyScreenJob(pipeline),
		NewRankPendingJob(ranking),
		NewLifecycleRefreshJob(lifecycle, lgr),
	}
}
