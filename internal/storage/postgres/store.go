package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

// poolTuning — настройки пула соединений. Репозитории делят один пул;
// лимиты подобраны под типичный одиночный инстанс сервиса.
var poolTuning = struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}{
	maxOpen:     25,
	maxIdle:     25,
	maxLifetime: 30 * time.Minute,
	maxIdleTime: 5 * time.Minute,
}

// Store владеет подключением к PostgreSQL; репозитории получают *sql.DB
// через DB() и не закрывают его сами.
type Store struct {
	db *sql.DB
}

// Open подключается к PostgreSQL через stdlib-обёртку pgx и сразу
// проверяет базу ping'ом: ошибку конфигурации лучше получить на старте.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(poolTuning.maxOpen)
	db.SetMaxIdleConns(poolTuning.maxIdle)
	db.SetConnMaxLifetime(poolTuning.maxLifetime)
	db.SetConnMaxIdleTime(poolTuning.maxIdleTime)

	s := &Store{db: db}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// DB отдаёт пул для репозиториев и миграций.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет живость подключения; используется readiness-пробами.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул. Безопасен на nil-значении.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
