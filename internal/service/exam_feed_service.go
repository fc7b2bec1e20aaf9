package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/model"
)

// ExamChange is the pub/sub payload announcing that an exam changed.
type ExamChange struct {
	ExamID   uuid.UUID        `json:"exam_id"`
	SchoolID string           `json:"school_id"`
	Status   model.ExamStatus `json:"status"`
	At       time.Time        `json:"at"`
}

// ExamFeedService publishes exam changes over Redis pub/sub and lets dashboards
// subscribe to a school's live exam list.
type ExamFeedService struct {
	rdb   *redis.Client
	exams ExamStore
	log   zerolog.Logger
}

// NewExamFeedService creates a new ExamFeedService.
func NewExamFeedService(rdb *redis.Client, exams ExamStore, log zerolog.Logger) *ExamFeedService {
	return &ExamFeedService{
		rdb:   rdb,
		exams: exams,
		log:   log.With().Str("component", "exam_feed").Logger(),
	}
}

// ExamChanged publishes e to its school channel and the global channel.
func (s *ExamFeedService) ExamChanged(ctx context.Context, e *model.Exam) {
	payload, err := json.Marshal(ExamChange{
		ExamID:   e.ID,
		SchoolID: e.SchoolID,
		Status:   e.Status,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	pipe := s.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.SchoolExamsChannel(e.SchoolID), payload)
	pipe.Publish(ctx, config.CacheKey.AllExamsChannel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("exam_id", e.ID.String()).Msg("Publish exam change failed")
	}
}

// Subscribe opens the change stream for schoolID, or for every school when
// schoolID is empty.
func (s *ExamFeedService) Subscribe(ctx context.Context, schoolID string) *redis.PubSub {
	if schoolID == "" {
		return s.rdb.Subscribe(ctx, config.CacheKey.AllExamsChannel())
	}
	return s.rdb.Subscribe(ctx, config.CacheKey.SchoolExamsChannel(schoolID))
}

// Snapshot returns the current exam list the feed pushes after every change.
func (s *ExamFeedService) Snapshot(ctx context.Context, schoolID string) ([]model.ExamSummary, error) {
	var (
		exams []model.Exam
		err   error
	)
	if schoolID == "" {
		exams, err = s.exams.ListAll(ctx, "")
	} else {
		exams, err = s.exams.ListBySchool(ctx, schoolID, "")
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.ExamSummary, len(exams))
	for i := range exams {
		out[i] = exams[i].Summary()
	}
	return out, nil
}
