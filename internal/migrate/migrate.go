package migrate

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// New monta o migrator com os scripts embutidos no binário.
func New(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrator: %w", err)
	}
	return m, nil
}

// Run aplica as migrações pendentes. Banco já atualizado não é erro.
func Run(databaseURL string) error {
	m, err := New(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version devolve a versão aplicada e se o banco ficou sujo numa migração interrompida.
func Version(databaseURL string) (uint, bool, error) {
	m, err := New(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// ErrDirty indica uma migração interrompida que precisa de intervenção manual.
var ErrDirty = errors.New("schema is dirty")

// Ensure aplica as migrações e confere que o banco ficou numa versão limpa.
func Ensure(databaseURL string) (uint, error) {
	if err := Run(databaseURL); err != nil {
		return 0, err
	}
	v, dirty, err := Version(databaseURL)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("version %d: %w", v, ErrDirty)
	}
	return v, nil
}
