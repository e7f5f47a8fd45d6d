package snapshot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// RunMeta describes one solver run.
type RunMeta struct {
	ID        string    `db:"id"`
	Kernel    string    `db:"kernel"`
	Ranks     int       `db:"ranks"`
	NX        int       `db:"nx"`
	NY        int       `db:"ny"`
	LengthX   float64   `db:"length_x"`
	LengthY   float64   `db:"length_y"`
	DeltaT    float64   `db:"delta_t"`
	ImagTime  bool      `db:"imag_time"`
	StartedAt time.Time `db:"started_at"`
}

// FrameRecord indexes one stamped frame.
type FrameRecord struct {
	RunID     string  `db:"run_id"`
	Iteration int     `db:"iteration"`
	Time      float64 `db:"time"`
	Norm      float64 `db:"norm"`
	Energy    float64 `db:"energy"`
	Path      string  `db:"path"`
}

// Store is a SQLite index of runs and their frames.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	st := &Store{conn: conn}
	if err := st.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return st, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	return st.conn.Close()
}

func (st *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kernel TEXT NOT NULL,
		ranks INTEGER NOT NULL,
		nx INTEGER NOT NULL,
		ny INTEGER NOT NULL,
		length_x REAL NOT NULL,
		length_y REAL NOT NULL,
		delta_t REAL NOT NULL,
		imag_time INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frames (
		run_id TEXT NOT NULL REFERENCES runs(id),
		iteration INTEGER NOT NULL,
		time REAL NOT NULL,
		norm REAL NOT NULL,
		energy REAL NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (run_id, iteration, path)
	);

	CREATE INDEX IF NOT EXISTS idx_frames_run ON frames(run_id, iteration);
	`
	_, err := st.conn.Exec(schema)
	return err
}

// BeginRun records meta under a fresh id and returns it.
func (st *Store) BeginRun(meta RunMeta) (string, error) {
	meta.ID = uuid.NewString()
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now().UTC()
	}

	_, err := st.conn.NamedExec(`INSERT INTO runs
		(id, kernel, ranks, nx, ny, length_x, length_y, delta_t, imag_time, started_at)
		VALUES (:id, :kernel, :ranks, :nx, :ny, :length_x, :length_y, :delta_t, :imag_time, :started_at)`, meta)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}

	return meta.ID, nil
}

// Run loads the metadata of run id.
func (st *Store) Run(id string) (RunMeta, error) {
	var meta RunMeta
	if err := st.conn.Get(&meta, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		return RunMeta{}, fmt.Errorf("run %s: %w", id, err)
	}

	return meta, nil
}

// Runs returns every recorded run, oldest first.
func (st *Store) Runs() ([]RunMeta, error) {
	var runs []RunMeta
	if err := st.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at, id"); err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}

	return runs, nil
}

// AppendFrames records frames in one transaction.
func (st *Store) AppendFrames(recs ...FrameRecord) error {
	tx, err := st.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO frames (run_id, iteration, time, norm, energy, path)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(r.RunID, r.Iteration, r.Time, r.Norm, r.Energy, r.Path); err != nil {
			return fmt.Errorf("append frame %d: %w", r.Iteration, err)
		}
	}

	return tx.Commit()
}

// Frames returns the frames of run id ordered by iteration.
func (st *Store) Frames(id string) ([]FrameRecord, error) {
	var recs []FrameRecord

	err := st.conn.Select(&recs, `SELECT run_id, iteration, time, norm, energy, path
		FROM frames WHERE run_id = ? ORDER BY iteration, path`, id)
	if err != nil {
		return nil, fmt.Errorf("frames %s: %w", id, err)
	}

	return recs, nil
}
