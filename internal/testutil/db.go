package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/migrate"
)

// OpenDB abre pool pgx e GORM a partir de DATABASE_URL, com as migrações aplicadas.
// Sem DATABASE_URL o teste é pulado.
func OpenDB(t *testing.T) (*pgxpool.Pool, *gorm.DB) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := migrate.Run(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	t.Cleanup(pool.Close)
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("gorm: %v", err)
	}
	return pool, db
}

// Truncate limpa as tabelas do cadastro entre testes.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE anamnesis_sessions, signup_sessions, patients CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
