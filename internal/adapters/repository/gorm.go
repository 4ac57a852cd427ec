package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/okian/detflow/internal/domain/model"
	"github.com/okian/detflow/pkg/logger"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// GormStore persists records through gorm on SQLite or PostgreSQL.
type GormStore struct {
	db      *gorm.DB
	backend string
	opts    options
}

// OpenGorm connects to driver at dsn. gorm's own messages go to log; a nil
// log discards them.
func OpenGorm(driver, dsn string, log logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidInput, driver)
	}

	if log == nil {
		log = logger.Nop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLog(log, gormLogger.Warn, time.Second),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return db, nil
}

// NewGormStore wraps db and migrates the schema unless disabled.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &GormStore{db: db, backend: db.Dialector.Name(), opts: o}
	if o.autoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(&callerRow{}, &submissionRow{}, &studyPlanRow{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, nil
}

func (s *GormStore) GetCallerByAddress(ctx context.Context, address string) (_ model.Caller, err error) {
	defer observe(s.backend, "get_caller", time.Now(), &err)
	var row callerRow
	if err = s.db.WithContext(ctx).Where("address = ?", address).Take(&row).Error; err != nil {
		return model.Caller{}, translate(err)
	}
	return row.model(), nil
}

func (s *GormStore) CreateCaller(ctx context.Context, c model.Caller) (_ model.Caller, err error) {
	defer observe(s.backend, "create_caller", time.Now(), &err)
	if strings.TrimSpace(c.Address) == "" {
		return model.Caller{}, fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.opts.now()
	}
	if c.LastActiveAt.IsZero() {
		c.LastActiveAt = c.CreatedAt
	}
	row := toCallerRow(c)
	if err = s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Caller{}, translate(err)
	}
	return row.model(), nil
}

func (s *GormStore) TouchCaller(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	defer observe(s.backend, "touch_caller", time.Now(), &err)
	return s.updateCaller(ctx, id, map[string]any{"last_active_at": at})
}

func (s *GormStore) IncrementSubmissions(ctx context.Context, id uuid.UUID) (n int, err error) {
	defer observe(s.backend, "increment_submissions", time.Now(), &err)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&callerRow{}).Where("id = ?", id).
			UpdateColumn("total_submissions", gorm.Expr("total_submissions + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var row callerRow
		if err := tx.Select("total_submissions").Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		n = row.TotalSubmissions
		return nil
	})
	return n, translate(err)
}

func (s *GormStore) SetCallerLevel(ctx context.Context, id uuid.UUID, level string) (err error) {
	defer observe(s.backend, "set_caller_level", time.Now(), &err)
	return s.updateCaller(ctx, id, map[string]any{"current_level": level})
}

func (s *GormStore) updateCaller(ctx context.Context, id uuid.UUID, cols map[string]any) error {
	res := s.db.WithContext(ctx).Model(&callerRow{}).Where("id = ?", id).UpdateColumns(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateSubmission(ctx context.Context, sub model.Submission) (_ model.Submission, err error) {
	defer observe(s.backend, "create_submission", time.Now(), &err)
	if sub.CallerID == uuid.Nil {
		return model.Submission{}, fmt.Errorf("%w: missing caller", ErrInvalidInput)
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = model.StatusCreated
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.opts.now()
	}
	row := toSubmissionRow(sub)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSeq(tx, &submissionRow{}, sub.CallerID)
		if err != nil {
			return err
		}
		row.Seq = seq
		return tx.Create(&row).Error
	})
	if err != nil {
		return model.Submission{}, translate(err)
	}
	return row.model(), nil
}

func (s *GormStore) GetSubmission(ctx context.Context, id uuid.UUID) (_ model.Submission, err error) {
	defer observe(s.backend, "get_submission", time.Now(), &err)
	var row submissionRow
	if err = s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return model.Submission{}, translate(err)
	}
	return row.model(), nil
}

func (s *GormStore) UpdateSubmission(ctx context.Context, sub model.Submission) (err error) {
	defer observe(s.backend, "update_submission", time.Now(), &err)
	row := toSubmissionRow(sub)
	res := s.db.WithContext(ctx).Model(&submissionRow{}).Where("id = ?", sub.ID).
		Select("status", "overall_score", "literacy", "comprehension", "conversation", "production",
			"cefr_level", "feedback", "evaluator_comments", "evaluation_error", "evaluated_at").
		Updates(&row)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) RecentSubmissions(ctx context.Context, callerID uuid.UUID, n int) (_ []model.Submission, err error) {
	defer observe(s.backend, "recent_submissions", time.Now(), &err)
	if n, err = clampRecent(n); err != nil {
		return nil, err
	}
	var rows []submissionRow
	if err = s.db.WithContext(ctx).
		Where("caller_id = ?", callerID).
		Order("seq DESC").
		Limit(n).
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]model.Submission, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *GormStore) CreateStudyPlan(ctx context.Context, p model.StudyPlan) (_ model.StudyPlan, err error) {
	defer observe(s.backend, "create_study_plan", time.Now(), &err)
	if p.CallerID == uuid.Nil {
		return model.StudyPlan{}, fmt.Errorf("%w: missing caller", ErrInvalidInput)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.opts.now()
	}
	row := toStudyPlanRow(p)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSeq(tx, &studyPlanRow{}, p.CallerID)
		if err != nil {
			return err
		}
		row.Seq = seq
		return tx.Create(&row).Error
	})
	if err != nil {
		return model.StudyPlan{}, translate(err)
	}
	return row.model(), nil
}

func (s *GormStore) ActivePlans(ctx context.Context, callerID uuid.UUID) (_ []model.StudyPlan, err error) {
	defer observe(s.backend, "active_plans", time.Now(), &err)
	var rows []studyPlanRow
	if err = s.db.WithContext(ctx).
		Where("caller_id = ? AND active = ?", callerID, true).
		Order("seq DESC").
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]model.StudyPlan, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *GormStore) DeactivatePlans(ctx context.Context, callerID uuid.UUID) (_ int, err error) {
	defer observe(s.backend, "deactivate_plans", time.Now(), &err)
	res := s.db.WithContext(ctx).Model(&studyPlanRow{}).
		Where("caller_id = ? AND active = ?", callerID, true).
		UpdateColumn("active", false)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&callerRow{}).Count(&st.Callers).Error; err != nil {
		return Stats{}, translate(err)
	}
	if err := db.Model(&submissionRow{}).Count(&st.Submissions).Error; err != nil {
		return Stats{}, translate(err)
	}
	if err := db.Model(&studyPlanRow{}).Count(&st.StudyPlans).Error; err != nil {
		return Stats{}, translate(err)
	}
	return st, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// nextSeq returns the next per-caller sequence number for table. Writes for
// one caller are serialized by the caller lock; the unique index on
// (caller_id, seq) rejects a racing writer instead of storing a tie.
func nextSeq(tx *gorm.DB, table any, callerID uuid.UUID) (int64, error) {
	var last int64
	if err := tx.Model(table).Where("caller_id = ?", callerID).
		Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return 0, err
	}
	return last + 1, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists
	default:
		return err
	}
}
