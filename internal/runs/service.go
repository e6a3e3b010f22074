package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"backend-runtracker/internal/db"
	"backend-runtracker/internal/logging"
	"backend-runtracker/internal/tracker"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound      = errors.New("run not found")
	ErrNotAuthorized = errors.New("user not authorized")
	ErrNoBestRun     = errors.New("no runs found for ghost mode")
)

// Only runs longer than this qualify as a ghost reference.
const bestRunMinDistanceKm = 0.5

var fieldMessages = map[string]string{
	"distance":  "Distance must be positive",
	"time":      "Time must be positive",
	"pace":      "Pace is required",
	"calories":  "Calories must be positive",
	"client_id": "Client id is too long",
}

const runColumns = `id, user_id, COALESCE(client_id, ''), date, time_sec, distance_km, pace, pace_seconds, calories, path, deleted, caption, is_posted, created_at`

type Service struct {
	db       db.Querier
	validate *validator.Validate
	now      func() time.Time
}

func NewService(q db.Querier) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{db: q, validate: v, now: time.Now}
}

// Validate checks a save payload, returning *ValidationError on failure.
func (s *Service) Validate(req CreateRunRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = "Invalid value"
		}
		out.Errors = append(out.Errors, FieldError{Msg: msg, Param: fe.Field(), Value: fe.Value()})
	}
	return out
}

// Create stores a run for userID. A repeated client_id returns the run stored
// by the first submission instead of inserting a duplicate.
func (s *Service) Create(ctx context.Context, userID string, req CreateRunRequest) (Run, error) {
	if err := s.Validate(req); err != nil {
		return Run{}, err
	}

	run := Run{
		ID:       uuid.NewString(),
		UserID:   userID,
		ClientID: req.ClientID,
		Time:     *req.Time,
		Distance: *req.Distance,
		Pace:     req.Pace,
		Calories: int(math.Round(*req.Calories)),
		Path:     req.Path,
	}
	if run.Path == nil {
		run.Path = []tracker.GeoPoint{}
	}
	run.Date = s.now().UTC()
	if req.Date != nil && !req.Date.IsZero() {
		run.Date = *req.Date
	}
	// Free-form paces are stored but never compete for best run.
	if secs, err := tracker.ParsePace(req.Pace); err == nil {
		run.PaceSeconds = secs
	}

	path, err := json.Marshal(run.Path)
	if err != nil {
		return Run{}, err
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO runs (id, user_id, client_id, date, time_sec, distance_km, pace, pace_seconds, calories, path)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id, client_id) DO UPDATE SET client_id = EXCLUDED.client_id
		RETURNING id, date, created_at, (xmax = 0) AS inserted
	`, run.ID, run.UserID, run.ClientID, run.Date, run.Time, run.Distance, run.Pace, run.PaceSeconds, run.Calories, path)
	if err := row.Scan(&run.ID, &run.Date, &run.CreatedAt, &run.Inserted); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	if !run.Inserted {
		logging.Debug().Str("user_id", userID).Str("client_id", run.ClientID).Msg("run already stored")
		return run, nil
	}
	logging.Info().
		Str("user_id", userID).
		Str("run_id", run.ID).
		Float64("distance_km", run.Distance).
		Int("path_points", len(run.Path)).
		Msg("run saved")
	return run, nil
}

// SaveFinished stores a run produced by a live session.
func (s *Service) SaveFinished(ctx context.Context, userID string, fin tracker.FinishedRun) (Run, error) {
	t := fin.Time
	d := fin.Distance
	c := float64(fin.Calories)
	date := fin.Date
	return s.Create(ctx, userID, CreateRunRequest{
		ClientID: fin.ClientID,
		Time:     &t,
		Distance: &d,
		Pace:     fin.Pace,
		Calories: &c,
		Path:     fin.Path,
		Date:     &date,
	})
}

func (s *Service) List(ctx context.Context, userID string) ([]Run, error) {
	return s.query(ctx, `SELECT `+runColumns+` FROM runs WHERE user_id=$1 AND NOT deleted ORDER BY date DESC`, userID)
}

func (s *Service) Trash(ctx context.Context, userID string) ([]Run, error) {
	return s.query(ctx, `SELECT `+runColumns+` FROM runs WHERE user_id=$1 AND deleted ORDER BY date DESC`, userID)
}

// Best is the fastest non-deleted run longer than half a kilometer.
func (s *Service) Best(ctx context.Context, userID string) (Run, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE user_id=$1 AND NOT deleted AND distance_km > $2 AND pace_seconds > 0
		ORDER BY pace_seconds ASC
		LIMIT 1
	`, userID, bestRunMinDistanceKm)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNoBestRun
	}
	return run, err
}

func (s *Service) SoftDelete(ctx context.Context, userID, runID string) error {
	if err := s.authorize(ctx, userID, runID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `UPDATE runs SET deleted = TRUE WHERE id=$1`, runID)
	return err
}

func (s *Service) Restore(ctx context.Context, userID, runID string) (Run, error) {
	if err := s.authorize(ctx, userID, runID); err != nil {
		return Run{}, err
	}
	return scanRun(s.db.QueryRow(ctx, `
		UPDATE runs SET deleted = FALSE WHERE id=$1
		RETURNING `+runColumns, runID))
}

// Post publishes the run with a caption.
func (s *Service) Post(ctx context.Context, userID, runID, caption string) (Run, error) {
	if err := s.authorize(ctx, userID, runID); err != nil {
		return Run{}, err
	}
	return scanRun(s.db.QueryRow(ctx, `
		UPDATE runs SET caption = $2, is_posted = TRUE WHERE id=$1
		RETURNING `+runColumns, runID, caption))
}

func (s *Service) PermanentDelete(ctx context.Context, userID, runID string) error {
	if err := s.authorize(ctx, userID, runID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM runs WHERE id=$1`, runID)
	return err
}

// DeleteAll removes every run of the user, trashed or not.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM runs WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Service) authorize(ctx context.Context, userID, runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return ErrNotFound
	}
	var owner string
	err := s.db.QueryRow(ctx, `SELECT user_id FROM runs WHERE id=$1`, runID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Service) query(ctx context.Context, sql string, args ...any) ([]Run, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	var path []byte
	err := row.Scan(&run.ID, &run.UserID, &run.ClientID, &run.Date, &run.Time, &run.Distance, &run.Pace,
		&run.PaceSeconds, &run.Calories, &path, &run.Deleted, &run.Caption, &run.IsPosted, &run.CreatedAt)
	if err != nil {
		return Run{}, err
	}
	run.Path = []tracker.GeoPoint{}
	if len(path) > 0 {
		if err := json.Unmarshal(path, &run.Path); err != nil {
			return Run{}, fmt.Errorf("decode path of run %s: %w", run.ID, err)
		}
	}
	return run, nil
}
