package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/profile"
	"github.com/okian/medrank/pkg/logger"
)

// Fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS doctors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	total_followers INTEGER NOT NULL DEFAULT 0,
	data TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS weight_profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	influence REAL NOT NULL,
	activity REAL NOT NULL,
	quality REAL NOT NULL,
	price REAL NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS weight_profiles_single_default
	ON weight_profiles(is_default) WHERE is_default = 1;
CREATE TABLE IF NOT EXISTS scoring_records (
	profile_id TEXT NOT NULL,
	doctor_id TEXT NOT NULL,
	sub_indices TEXT NOT NULL,
	composite REAL,
	tier TEXT NOT NULL,
	influence REAL NOT NULL,
	value_index REAL NOT NULL,
	rank INTEGER NOT NULL,
	computed_at TEXT NOT NULL,
	PRIMARY KEY (profile_id, doctor_id)
);
CREATE INDEX IF NOT EXISTS scoring_records_rank ON scoring_records(profile_id, rank);
`

const profileColumns = `id, name, description, influence, activity, quality, price, is_default, state, created_at, updated_at`

const scoreColumns = `profile_id, doctor_id, sub_indices, composite, tier, influence, value_index, rank, computed_at`

// SQLStore persists to SQLite through database/sql. Activation and score
// replacement each run in a single transaction.
type SQLStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (or creates) the database at path and migrates it. An
// empty path or ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has one writer; a single connection also keeps an in-memory
	// database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}
	s, err := NewSQLStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and runs the migrations.
func NewSQLStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{db: db, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) PutDoctors(ctx context.Context, doctors []model.Doctor) error {
	const op = "put_doctors"
	if err := apperr.CheckContext(ctx, op); err != nil {
		return err
	}
	defer observe(op, time.Now())

	for i := range doctors {
		if err := doctors[i].Validate(); err != nil {
			return apperr.Errorf(apperr.KindValidation, op, "doctor %q: %w", doctors[i].ID, err)
		}
	}
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		for i := range doctors {
			d := &doctors[i]
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encode doctor %s: %w", d.ID, err)
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO doctors (id, name, region, department, total_followers, data, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, region = excluded.region,
					department = excluded.department, total_followers = excluded.total_followers,
					data = excluded.data, updated_at = excluded.updated_at`,
				d.ID, d.Name, d.Region, d.Department, d.TotalFollowers, string(data), formatTime(s.opts.now()))
			if err != nil {
				return fmt.Errorf("upsert doctor %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	const op = "get_doctor"
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM doctors WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Doctor{}, apperr.Errorf(apperr.KindNotFound, op, "%w: %s", ErrDoctorNotFound, id)
	}
	if err != nil {
		return model.Doctor{}, s.fail(ctx, op, err)
	}
	var d model.Doctor
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return model.Doctor{}, apperr.Wrap(apperr.KindStore, op, err)
	}
	return d, nil
}

func (s *SQLStore) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	const op = "list_doctors"
	defer observe(op, time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM doctors ORDER BY id`)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Doctor{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, s.fail(ctx, op, err)
		}
		var d model.Doctor
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, op, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return out, nil
}

func (s *SQLStore) CountDoctors(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&n); err != nil {
		return 0, s.fail(ctx, "count_doctors", err)
	}
	return n, nil
}

func (s *SQLStore) CreateProfile(ctx context.Context, p model.WeightProfile) error {
	const op = "create_profile"
	if p.ID == "" {
		return apperr.New(apperr.KindValidation, op, "profile id must not be empty")
	}
	state, err := profile.Transition(model.StateDraft, profile.EventCreate)
	if err != nil {
		return err
	}
	if p.IsDefault {
		state = model.StateDefault
	}
	p.State = state
	s.stamp(&p)

	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM weight_profiles WHERE id = ?`, p.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return apperr.Errorf(apperr.KindConflict, op, "%w: %s", ErrProfileExists, p.ID)
		}
		if p.IsDefault {
			if _, err := queryDefault(ctx, tx); err == nil {
				return apperr.New(apperr.KindConflict, op, "default profile already set")
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		return insertProfile(ctx, tx, p)
	})
}

func (s *SQLStore) UpdateProfile(ctx context.Context, p model.WeightProfile) (model.WeightProfile, error) {
	const op = "update_profile"
	var out model.WeightProfile
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		cur, err := liveProfile(ctx, tx, op, p.ID)
		if err != nil {
			return err
		}
		if _, err := profile.Transition(profile.StateOf(cur), profile.EventUpdate); err != nil {
			return err
		}
		cur.Name = p.Name
		cur.Description = p.Description
		cur.Influence, cur.Activity, cur.Quality, cur.Price = p.Influence, p.Activity, p.Quality, p.Price
		cur.UpdatedAt = s.opts.now()
		_, err = tx.ExecContext(ctx, `UPDATE weight_profiles SET name = ?, description = ?, influence = ?, activity = ?,
			quality = ?, price = ?, updated_at = ? WHERE id = ?`,
			cur.Name, cur.Description, cur.Influence, cur.Activity, cur.Quality, cur.Price, formatTime(cur.UpdatedAt), cur.ID)
		out = cur
		return err
	})
	if err != nil {
		return model.WeightProfile{}, err
	}
	return out, nil
}

func (s *SQLStore) GetProfile(ctx context.Context, id string) (model.WeightProfile, error) {
	const op = "get_profile"
	p, err := liveProfile(ctx, s.db, op, id)
	if err != nil {
		return model.WeightProfile{}, s.fail(ctx, op, err)
	}
	return p, nil
}

func (s *SQLStore) ListProfiles(ctx context.Context) ([]model.WeightProfile, error) {
	const op = "list_profiles"
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM weight_profiles
		WHERE state <> ? ORDER BY is_default DESC, created_at, id`, string(model.StateRetired))
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.WeightProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, s.fail(ctx, op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return out, nil
}

func (s *SQLStore) DefaultProfile(ctx context.Context) (model.WeightProfile, error) {
	const op = "default_profile"
	p, err := queryDefault(ctx, s.db)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeightProfile{}, apperr.Wrap(apperr.KindNotFound, op, ErrNoDefault)
	}
	if err != nil {
		return model.WeightProfile{}, s.fail(ctx, op, err)
	}
	return p, nil
}

func (s *SQLStore) Activate(ctx context.Context, id string) (model.WeightProfile, error) {
	const op = "activate_profile"
	defer observe(op, time.Now())

	var out model.WeightProfile
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		target, err := liveProfile(ctx, tx, op, id)
		if err != nil {
			return err
		}
		next, err := profile.Transition(profile.StateOf(target), profile.EventActivate)
		if err != nil {
			return err
		}
		now := s.opts.now()

		prev, err := queryDefault(ctx, tx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case prev.ID != id:
			demoted, err := profile.Transition(profile.StateOf(prev), profile.EventDemote)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE weight_profiles SET is_default = 0, state = ?, updated_at = ? WHERE id = ?`,
				string(demoted), formatTime(now), prev.ID); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE weight_profiles SET is_default = 1, state = ?, updated_at = ? WHERE id = ?`,
			string(next), formatTime(now), id); err != nil {
			return err
		}
		target.IsDefault = true
		target.State = next
		target.UpdatedAt = now
		out = target
		return nil
	})
	if err != nil {
		return model.WeightProfile{}, err
	}
	s.opts.log.Info(ctx, "profile activated", logger.String("profile_id", id))
	return out, nil
}

func (s *SQLStore) RetireProfile(ctx context.Context, id string) error {
	const op = "retire_profile"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		p, err := liveProfile(ctx, tx, op, id)
		if err != nil {
			return err
		}
		next, err := profile.Transition(profile.StateOf(p), profile.EventDelete)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE weight_profiles SET state = ?, updated_at = ? WHERE id = ?`,
			string(next), formatTime(s.opts.now()), id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM scoring_records WHERE profile_id = ?`, id)
		return err
	})
}

func (s *SQLStore) EnsureDefault(ctx context.Context, seed model.WeightProfile) (model.WeightProfile, error) {
	const op = "ensure_default"
	if seed.ID == "" {
		return model.WeightProfile{}, apperr.New(apperr.KindValidation, op, "seed profile id must not be empty")
	}
	var out model.WeightProfile
	seeded := false
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		cur, err := queryDefault(ctx, tx)
		if err == nil {
			out = cur
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		seed.IsDefault = true
		seed.State = model.StateDefault
		s.stamp(&seed)
		if err := insertProfile(ctx, tx, seed); err != nil {
			return err
		}
		out, seeded = seed, true
		return nil
	})
	if err != nil {
		return model.WeightProfile{}, err
	}
	if seeded {
		s.opts.log.Info(ctx, "default profile seeded", logger.String("profile_id", out.ID))
	}
	return out, nil
}

// ReplaceScores deletes the profile's previous batch and inserts records
// ranked by composite, all in one transaction.
func (s *SQLStore) ReplaceScores(ctx context.Context, profileID string, records []model.ScoringRecord) error {
	const op = "replace_scores"
	defer observe(op, time.Now())

	batch := make([]model.ScoringRecord, len(records))
	for i, r := range records {
		if r.ProfileID != "" && r.ProfileID != profileID {
			return apperr.Errorf(apperr.KindValidation, op, "record %s belongs to profile %s", r.DoctorID, r.ProfileID)
		}
		r.ProfileID = profileID
		batch[i] = r
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return less(batch[i].Composite, batch[i].DoctorID, batch[j].Composite, batch[j].DoctorID)
	})

	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := liveProfile(ctx, tx, op, profileID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scoring_records WHERE profile_id = ?`, profileID); err != nil {
			return err
		}
		for i, r := range batch {
			sub, err := json.Marshal(r.SubIndices)
			if err != nil {
				return err
			}
			var composite sql.NullFloat64
			if !math.IsNaN(r.Composite) {
				composite = sql.NullFloat64{Float64: r.Composite, Valid: true}
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO scoring_records (`+scoreColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				profileID, r.DoctorID, string(sub), composite, string(r.Tier), r.Influence, r.ValueIndex, i+1, formatTime(r.ComputedAt))
			if err != nil {
				return fmt.Errorf("insert score %s: %w", r.DoctorID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetScore(ctx context.Context, doctorID, profileID string) (model.ScoringRecord, error) {
	const op = "get_score"
	row := s.db.QueryRowContext(ctx, `SELECT `+scoreColumns+` FROM scoring_records WHERE profile_id = ? AND doctor_id = ?`,
		profileID, doctorID)
	rec, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoringRecord{}, apperr.Errorf(apperr.KindNotFound, op, "%w: doctor %s profile %s", ErrScoreNotFound, doctorID, profileID)
	}
	if err != nil {
		return model.ScoringRecord{}, s.fail(ctx, op, err)
	}
	return rec, nil
}

func (s *SQLStore) TopScores(ctx context.Context, profileID string, n int) ([]model.ScoringRecord, error) {
	const op = "top_scores"
	if n <= 0 {
		return nil, apperr.Errorf(apperr.KindValidation, op, "%w: %d", ErrInvalidLimit, n)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+scoreColumns+` FROM scoring_records WHERE profile_id = ? ORDER BY rank LIMIT ?`,
		profileID, n)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.ScoringRecord{}
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, s.fail(ctx, op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return out, nil
}

func (s *SQLStore) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if err := apperr.CheckContext(ctx, op); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.opts.log.Error(ctx, "rollback failed", logger.String("op", op), logger.Error(rbErr))
		}
		return s.fail(ctx, op, err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail(ctx, op, err)
	}
	return nil
}

// fail classifies err: cancellation wins, classified errors keep their
// kind, and everything else is a store failure.
func (s *SQLStore) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperr.FromContext(op, ctxErr)
	}
	return apperr.Wrap(apperr.KindStore, op, err)
}

func (s *SQLStore) stamp(p *model.WeightProfile) {
	now := s.opts.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func liveProfile(ctx context.Context, q querier, op, id string) (model.WeightProfile, error) {
	row := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM weight_profiles WHERE id = ? AND state <> ?`,
		id, string(model.StateRetired))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeightProfile{}, apperr.Errorf(apperr.KindNotFound, op, "%w: %s", ErrProfileNotFound, id)
	}
	return p, err
}

func queryDefault(ctx context.Context, q querier) (model.WeightProfile, error) {
	return scanProfile(q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM weight_profiles WHERE is_default = 1`))
}

func insertProfile(ctx context.Context, tx *sql.Tx, p model.WeightProfile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO weight_profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Influence, p.Activity, p.Quality, p.Price, boolInt(p.IsDefault), string(p.State),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

func scanProfile(sc scanner) (model.WeightProfile, error) {
	var (
		p                model.WeightProfile
		isDefault        int
		state            string
		created, updated string
	)
	if err := sc.Scan(&p.ID, &p.Name, &p.Description, &p.Influence, &p.Activity, &p.Quality, &p.Price,
		&isDefault, &state, &created, &updated); err != nil {
		return model.WeightProfile{}, err
	}
	p.IsDefault = isDefault == 1
	p.State = model.ProfileState(state)
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return model.WeightProfile{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return model.WeightProfile{}, err
	}
	return p, nil
}

func scanScore(sc scanner) (model.ScoringRecord, error) {
	var (
		r         model.ScoringRecord
		sub, tier string
		composite sql.NullFloat64
		computed  string
	)
	if err := sc.Scan(&r.ProfileID, &r.DoctorID, &sub, &composite, &tier, &r.Influence, &r.ValueIndex, &r.Rank, &computed); err != nil {
		return model.ScoringRecord{}, err
	}
	if err := json.Unmarshal([]byte(sub), &r.SubIndices); err != nil {
		return model.ScoringRecord{}, err
	}
	r.Composite = math.NaN()
	if composite.Valid {
		r.Composite = composite.Float64
	}
	r.Tier = model.Tier(tier)
	var err error
	if r.ComputedAt, err = parseTime(computed); err != nil {
		return model.ScoringRecord{}, err
	}
	return r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
