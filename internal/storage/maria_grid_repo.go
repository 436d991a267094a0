package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MariaGridRepo реализует GridRepo для базы данных MariaDB/MySQL.
// Снимки хранятся в таблице ship_grids (или заданной в конфиге).
type MariaGridRepo struct {
	db    *sql.DB
	table string
}

// NewMariaGridRepo создает новый репозиторий снимков для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
//	table - имя таблицы, по умолчанию ship_grids
//
// Возвращает:
//
//	*MariaGridRepo - экземпляр репозитория
//	error - ошибка при подключении или создании таблицы
func NewMariaGridRepo(ctx context.Context, dsn, table string) (*MariaGridRepo, error) {
	if table == "" {
		table = "ship_grids"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("недопустимое имя таблицы: %q", table)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaGridRepo{db: db, table: table}

	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создает таблицу снимков, если она не существует.
func (r *MariaGridRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + r.table + ` (
			ship_id    CHAR(36)    PRIMARY KEY,
			data       LONGBLOB    NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы %s: %w", r.table, err)
	}
	return nil
}

// Save сохраняет снимок.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (r *MariaGridRepo) Save(ctx context.Context, shipID uuid.UUID, data []byte) error {
	query := `
		INSERT INTO ` + r.table + ` (ship_id, data)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, shipID.String(), data); err != nil {
		return fmt.Errorf("ошибка сохранения снимка %s: %w", shipID, err)
	}
	return nil
}

// Load загружает снимок
func (r *MariaGridRepo) Load(ctx context.Context, shipID uuid.UUID) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM `+r.table+` WHERE ship_id = ?`, shipID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки снимка %s: %w", shipID, err)
	}
	return data, nil
}

// Delete удаляет снимок
func (r *MariaGridRepo) Delete(ctx context.Context, shipID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE ship_id = ?`, shipID.String()); err != nil {
		return fmt.Errorf("ошибка удаления снимка %s: %w", shipID, err)
	}
	return nil
}

// List возвращает идентификаторы всех кораблей
func (r *MariaGridRepo) List(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ship_id FROM `+r.table+` ORDER BY ship_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close закрывает соединение с базой
func (r *MariaGridRepo) Close() error {
	return r.db.Close()
}
