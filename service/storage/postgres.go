package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"PPGate/tools/errs"
	"PPGate/tools/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
	id         BIGINT PRIMARY KEY,
	sender     TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	text       TEXT,
	attachment TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_pair_idx
	ON messages (LEAST(sender, recipient), GREATEST(sender, recipient), id);
`

// OpenPostgres connects a pool and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errs.WrapMsg(err, "unable to connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres ping")
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres schema")
	}
	return pool, nil
}

type PgMessages struct {
	pool *pgxpool.Pool
	ids  *ids.Generator
}

func NewPgMessages(pool *pgxpool.Pool, nodeID int64) *PgMessages {
	return &PgMessages{pool: pool, ids: ids.NewGenerator(nodeID)}
}

func (s *PgMessages) Create(ctx context.Context, sender, recipient, text, attachment string) (*Message, error) {
	seq := s.ids.Next()
	m := &Message{
		ID:         strconv.FormatInt(seq, 10),
		Seq:        seq,
		Sender:     sender,
		Recipient:  recipient,
		Text:       text,
		Attachment: attachment,
		CreatedAt:  s.ids.Time(seq),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, sender, recipient, text, attachment, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		seq, sender, recipient, nullable(text), nullable(attachment), m.CreatedAt)
	if err != nil {
		return nil, errs.ErrStore.Cause(err, "table", "messages")
	}
	return m, nil
}

func (s *PgMessages) Find(ctx context.Context, a, b string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, recipient, text, attachment, created_at FROM messages
		 WHERE sender = ANY($1) AND recipient = ANY($1) ORDER BY id`, []string{a, b})
	if err != nil {
		return nil, errs.WrapMsg(err, "query messages", "a", a, "b", b)
	}
	defer rows.Close()
	out := make([]*Message, 0)
	for rows.Next() {
		var (
			m          Message
			text, file *string
		)
		if err := rows.Scan(&m.Seq, &m.Sender, &m.Recipient, &text, &file, &m.CreatedAt); err != nil {
			return nil, errs.WrapMsg(err, "scan message")
		}
		m.ID = strconv.FormatInt(m.Seq, 10)
		if text != nil {
			m.Text = *text
		}
		if file != nil {
			m.Attachment = *file
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapMsg(err, "iterate messages")
	}
	return out, nil
}

type PgUsers struct {
	pool *pgxpool.Pool
}

func NewPgUsers(pool *pgxpool.Pool) *PgUsers {
	return &PgUsers{pool: pool}
}

func (s *PgUsers) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{ID: ids.GenerateString(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, errs.ErrRecordExists.WrapMsg("username taken", "username", username)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "insert user")
	}
	return u, nil
}

func (s *PgUsers) findOne(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE `+where+` = $1`, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", where, arg)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find user")
	}
	return &u, nil
}

func (s *PgUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, "username", username)
}

func (s *PgUsers) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, "id", id)
}

func (s *PgUsers) List(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username FROM users ORDER BY username`)
	if err != nil {
		return nil, errs.WrapMsg(err, "list users")
	}
	defer rows.Close()
	out := make([]*User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, errs.WrapMsg(err, "scan user")
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
