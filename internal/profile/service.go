package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"backend-runtracker/internal/db"
	"backend-runtracker/internal/logging"
	"backend-runtracker/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

var (
	ErrShoeNotFound = errors.New("shoe not found")
	ErrNoActiveShoe = errors.New("no active shoe")
)

const weightCacheTTL = time.Hour

const shoeColumns = `id, user_id, name, distance_km, target_km, active, created_at`

type Service struct {
	db              db.Querier
	cache           *redis.Client
	validate        *validator.Validate
	defaultWeightKg float64
}

// NewService accepts a nil cache; weights are then read from postgres every time.
func NewService(q db.Querier, cache *redis.Client, defaultWeightKg float64) *Service {
	if defaultWeightKg <= 0 {
		defaultWeightKg = DefaultWeightKg
	}
	return &Service{
		db:              q,
		cache:           cache,
		validate:        validator.New(),
		defaultWeightKg: defaultWeightKg,
	}
}

func weightKey(userID string) string {
	return "profile:" + userID + ":weight"
}

// Weight returns the body weight used for calorie estimates, falling back to
// the default when the user has none on file.
func (s *Service) Weight(ctx context.Context, userID string) (float64, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, weightKey(userID)).Result()
		switch {
		case err == nil:
			if kg, perr := strconv.ParseFloat(raw, 64); perr == nil {
				metrics.WeightCacheLookups.WithLabelValues("hit").Inc()
				return kg, nil
			}
		case errors.Is(err, redis.Nil):
		default:
			logging.Warn().Err(err).Str("user_id", userID).Msg("weight cache read failed")
		}
		metrics.WeightCacheLookups.WithLabelValues("miss").Inc()
	}

	var weight float64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(weight_kg, 0) FROM user_profiles WHERE user_id=$1`, userID).Scan(&weight)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	kg := s.defaultWeightKg
	if weight > 0 {
		kg = weight
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, weightKey(userID), strconv.FormatFloat(kg, 'f', -1, 64), weightCacheTTL).Err(); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("weight cache write failed")
		}
	}
	return kg, nil
}

func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	p := Profile{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(weight_kg, 0), COALESCE(height_cm, 0), COALESCE(to_char(dob, 'YYYY-MM-DD'), ''), COALESCE(gender, '')
		FROM user_profiles WHERE user_id=$1
	`, userID).Scan(&p.WeightKg, &p.HeightCm, &p.DOB, &p.Gender)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, err
	}

	if p.WeightKg <= 0 {
		p.WeightKg = s.defaultWeightKg
	}
	if p.HeightCm <= 0 {
		p.HeightCm = DefaultHeightCm
	}
	if p.DOB == "" {
		p.DOB = DefaultDOB
	}
	if p.Gender == "" {
		p.Gender = DefaultGender
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (Profile, error) {
	if err := s.validate.Struct(req); err != nil {
		return Profile{}, err
	}
	var dob *time.Time
	if req.DOB != nil {
		t, err := time.Parse("2006-01-02", *req.DOB)
		if err != nil {
			return Profile{}, err
		}
		dob = &t
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO user_profiles (user_id, weight_kg, height_cm, dob, gender)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			weight_kg = COALESCE(EXCLUDED.weight_kg, user_profiles.weight_kg),
			height_cm = COALESCE(EXCLUDED.height_cm, user_profiles.height_cm),
			dob = COALESCE(EXCLUDED.dob, user_profiles.dob),
			gender = COALESCE(EXCLUDED.gender, user_profiles.gender),
			updated_at = NOW()
	`, userID, req.Weight, req.Height, dob, req.Gender)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, weightKey(userID)).Err(); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("weight cache invalidation failed")
		}
	}
	return s.Get(ctx, userID)
}

func (s *Service) Shoes(ctx context.Context, userID string) ([]Shoe, error) {
	rows, err := s.db.Query(ctx, `SELECT `+shoeColumns+` FROM shoes WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Shoe{}
	for rows.Next() {
		shoe, err := scanShoe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, shoe)
	}
	return out, rows.Err()
}

// AddShoe registers a shoe. It becomes active when the user has no active shoe.
func (s *Service) AddShoe(ctx context.Context, userID string, req CreateShoeRequest) (Shoe, error) {
	if err := s.validate.Struct(req); err != nil {
		return Shoe{}, err
	}
	if req.TargetKm <= 0 {
		req.TargetKm = DefaultTargetKm
	}
	return scanShoe(s.db.QueryRow(ctx, `
		INSERT INTO shoes (id, user_id, name, target_km, active)
		VALUES ($1,$2,$3,$4, NOT EXISTS (SELECT 1 FROM shoes WHERE user_id=$2 AND active))
		RETURNING `+shoeColumns,
		uuid.NewString(), userID, req.Name, req.TargetKm))
}

// ActivateShoe makes shoeID the only active shoe of the user.
func (s *Service) ActivateShoe(ctx context.Context, userID, shoeID string) error {
	if _, err := uuid.Parse(shoeID); err != nil {
		return ErrShoeNotFound
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE shoes SET active = (id = $2)
		WHERE user_id=$1 AND EXISTS (SELECT 1 FROM shoes WHERE id=$2 AND user_id=$1)
	`, userID, shoeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShoeNotFound
	}
	return nil
}

func (s *Service) DeleteShoe(ctx context.Context, userID, shoeID string) error {
	if _, err := uuid.Parse(shoeID); err != nil {
		return ErrShoeNotFound
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM shoes WHERE id=$1 AND user_id=$2`, shoeID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShoeNotFound
	}
	return nil
}

// AddShoeMileage adds km to the active shoe and reports whether it is now
// past its target.
func (s *Service) AddShoeMileage(ctx context.Context, userID string, km float64) (Shoe, bool, error) {
	shoe, err := scanShoe(s.db.QueryRow(ctx, `
		UPDATE shoes SET distance_km = ROUND((distance_km + $2)::numeric, 2)::float8
		WHERE user_id=$1 AND active
		RETURNING `+shoeColumns, userID, km))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shoe{}, false, ErrNoActiveShoe
	}
	if err != nil {
		return Shoe{}, false, err
	}
	return shoe, shoe.Worn(), nil
}

func scanShoe(row pgx.Row) (Shoe, error) {
	var shoe Shoe
	err := row.Scan(&shoe.ID, &shoe.UserID, &shoe.Name, &shoe.DistanceKm, &shoe.TargetKm, &shoe.Active, &shoe.CreatedAt)
	return shoe, err
}
