package profile

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps the profile in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path, applying any pending schema migrations first.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := migrateUp(path); err != nil {
		return nil, fmt.Errorf("profile migrations: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping profile db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrateUp(path string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path+"?_foreign_keys=on")
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Fetch loads the whole profile.
func (s *SQLiteStore) Fetch(ctx context.Context) (UserData, error) {
	var data UserData

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM playlists ORDER BY position`)
	if err != nil {
		return UserData{}, fmt.Errorf("load playlists: %w", err)
	}
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			rows.Close()
			return UserData{}, fmt.Errorf("scan playlist: %w", err)
		}
		data.Playlists = append(data.Playlists, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return UserData{}, fmt.Errorf("iterate playlists: %w", err)
	}

	for i := range data.Playlists {
		ids, err := s.strings(ctx,
			`SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`,
			data.Playlists[i].ID)
		if err != nil {
			return UserData{}, fmt.Errorf("load playlist tracks: %w", err)
		}
		data.Playlists[i].TrackIDs = ids
	}

	data.Favorites, err = s.strings(ctx, `SELECT track_id FROM favorites ORDER BY position`)
	if err != nil {
		return UserData{}, fmt.Errorf("load favorites: %w", err)
	}

	grows, err := s.db.QueryContext(ctx, `SELECT gesture, action FROM gestures`)
	if err != nil {
		return UserData{}, fmt.Errorf("load gestures: %w", err)
	}
	defer grows.Close()
	for grows.Next() {
		var g, a string
		if err := grows.Scan(&g, &a); err != nil {
			return UserData{}, fmt.Errorf("scan gesture: %w", err)
		}
		if data.Gestures == nil {
			data.Gestures = make(map[string]string)
		}
		data.Gestures[g] = a
	}
	if err := grows.Err(); err != nil {
		return UserData{}, fmt.Errorf("iterate gestures: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SyncPlaylists replaces every stored playlist.
func (s *SQLiteStore) SyncPlaylists(ctx context.Context, playlists []Playlist) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM playlists`); err != nil {
			return err
		}
		for i, p := range playlists {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO playlists (id, name, position) VALUES (?, ?, ?)`,
				p.ID, p.Name, i); err != nil {
				return fmt.Errorf("insert playlist %s: %w", p.ID, err)
			}
			for j, id := range p.TrackIDs {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO playlist_tracks (playlist_id, position, track_id) VALUES (?, ?, ?)`,
					p.ID, j, id); err != nil {
					return fmt.Errorf("insert playlist track: %w", err)
				}
			}
		}
		return nil
	})
}

// SyncFavorites replaces the favorites list.
func (s *SQLiteStore) SyncFavorites(ctx context.Context, favorites []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM favorites`); err != nil {
			return err
		}
		for i, id := range favorites {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO favorites (track_id, position) VALUES (?, ?)`,
				id, i); err != nil {
				return fmt.Errorf("insert favorite: %w", err)
			}
		}
		return nil
	})
}

// SyncGestures replaces the gesture table.
func (s *SQLiteStore) SyncGestures(ctx context.Context, gestures map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM gestures`); err != nil {
			return err
		}
		for g, a := range gestures {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO gestures (gesture, action) VALUES (?, ?)`, g, a); err != nil {
				return fmt.Errorf("insert gesture: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
