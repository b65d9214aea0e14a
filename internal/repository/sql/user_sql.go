package sql_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/repository"
)

const userColumns = "username, email, first_name, last_name, enabled, verified, created_at"

var _ repository.UserRepository = (*SQLUserRepository)(nil)

// SQLUserRepository implements UserRepository on database/sql. Queries are written with
// '?' placeholders and rebound to $n for postgres.
type SQLUserRepository struct {
	db     *sql.DB
	driver string
}

func NewSQLUserRepository(db *sql.DB, driver string) *SQLUserRepository {
	return &SQLUserRepository{
		db:     db,
		driver: driver,
	}
}

// Migrate creates the users and user_events tables if missing.
func (r *SQLUserRepository) Migrate(ctx context.Context) error {
	eventID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.driver == "postgres" {
		eventID = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			email      TEXT,
			first_name TEXT,
			last_name  TEXT,
			enabled    BOOLEAN NOT NULL DEFAULT FALSE,
			verified   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_events (
			id         ` + eventID + `,
			username   TEXT NOT NULL,
			acting_as  TEXT NOT NULL,
			category   TEXT NOT NULL,
			type       TEXT NOT NULL,
			action     TEXT NOT NULL,
			reason     TEXT NOT NULL,
			comment    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate user tables: %w", err)
		}
	}
	return nil
}

// GetUser maps query and connection faults to wrapped driver errors and rows that do not
// decode to ErrUserInit.
func (r *SQLUserRepository) GetUser(ctx context.Context, username string) (*models.LocalUser, error) {
	rows, err := r.db.QueryContext(ctx,
		r.rebind("SELECT "+userColumns+" FROM users WHERE username = ?"),
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read user %s: %w", username, err)
		}
		return nil, repository.ErrUserNotFound
	}

	var (
		user      models.LocalUser
		email     sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
	)
	if err := rows.Scan(&user.Username, &email, &firstName, &lastName, &user.Enabled, &user.Verified, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", repository.ErrUserInit, username, err)
	}
	// a row without an email was written partially
	if !email.Valid {
		return nil, fmt.Errorf("%w: %s: email is null", repository.ErrUserInit, username)
	}
	user.Email = email.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	return &user, nil
}

func (r *SQLUserRepository) NewUser() *models.LocalUser {
	return &models.LocalUser{}
}

// CreateUser inserts with ON CONFLICT DO NOTHING; zero affected rows means the username was taken.
func (r *SQLUserRepository) CreateUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	return r.write(ctx, user, actingAdmin, audit, ev,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (username) DO NOTHING",
		true,
	)
}

func (r *SQLUserRepository) SaveUser(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails) error {
	return r.write(ctx, user, actingAdmin, audit, ev,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT (username) DO UPDATE SET email = excluded.email, first_name = excluded.first_name, "+
			"last_name = excluded.last_name, enabled = excluded.enabled, verified = excluded.verified",
		false,
	)
}

func (r *SQLUserRepository) write(ctx context.Context, user *models.LocalUser, actingAdmin *models.LocalUser, audit bool, ev models.EventDetails, query string, mustBeNew bool) error {
	if user == nil || user.Username == "" {
		return errors.New("invalid user: username must be set")
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.rebind(query),
		user.Username, user.Email, user.FirstName, user.LastName, user.Enabled, user.Verified, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if mustBeNew {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return repository.ErrUserExists
		}
	}

	if audit {
		event := repository.NewEvent(user, actingAdmin, ev)
		_, err = tx.ExecContext(ctx, r.rebind(
			"INSERT INTO user_events (username, acting_as, category, type, action, reason, comment, created_at) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
			event.Username, event.ActingAs, ev.Category, ev.Type, ev.Action, ev.Reason, ev.Comment, event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store user event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLUserRepository) SetEnabled(ctx context.Context, username string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, r.rebind("UPDATE users SET enabled = ? WHERE username = ?"), enabled, username)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *SQLUserRepository) ListEvents(ctx context.Context, username string) ([]models.UserEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		"SELECT username, acting_as, category, type, action, reason, comment, created_at "+
			"FROM user_events WHERE username = ? ORDER BY id"),
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user events: %w", err)
	}
	defer rows.Close()

	var events []models.UserEvent
	for rows.Next() {
		var e models.UserEvent
		if err := rows.Scan(&e.Username, &e.ActingAs, &e.Details.Category, &e.Details.Type,
			&e.Details.Action, &e.Details.Reason, &e.Details.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user events: %w", err)
	}
	return events, nil
}

// rebind turns '?' placeholders into $1..$n for postgres.
func (r *SQLUserRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
