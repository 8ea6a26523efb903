package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the system tables and seeds the initial admin user when
// the user table is empty.
func (s *Store) Bootstrap(ctx context.Context, adminEmail, adminPassword string) error {
	for _, stmt := range splitStatements(s.Dialect.SystemTablesSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create system tables: %w", err)
		}
	}

	if adminEmail == "" {
		return nil
	}
	return s.ensureAdminUser(ctx, adminEmail, adminPassword)
}

func (s *Store) ensureAdminUser(ctx context.Context, email, password string) error {
	row, err := QueryRow(ctx, s.DB, "SELECT COUNT(*) AS count FROM _users")
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n, ok := row["count"].(int64); ok && n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _users (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.New().String()), pb.Add(email), pb.Add(string(hash)), pb.Add(`["admin"]`))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func splitStatements(sqlText string) []string {
	var out []string
	for _, stmt := range strings.Split(sqlText, ";") {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}
