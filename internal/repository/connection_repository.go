package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradedesk/internal/models"
)

// Ошибки репозитория подключений
var (
	ErrConnectionNotFound = errors.New("connection not found")
)

// ConnectionRepository - работа с таблицей connections.
// Секреты хранятся ТОЛЬКО в зашифрованном виде: шифрование выполняет
// сервисный слой до вызова Create/UpdateCredentials.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository создает новый экземпляр репозитория
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, label, provider, api_family, environment,
	api_key_encrypted, secret_key_encrypted, passphrase_encrypted, bearer_token_encrypted,
	can_read, can_trade_spot, can_trade_derivatives, can_withdraw, can_onchain,
	status, last_error, last_sync_at, created_at, updated_at`

// Create создает подключение и возвращает его ID
func (r *ConnectionRepository) Create(conn *models.Connection) error {
	query := `
		INSERT INTO connections (user_id, label, provider, api_family, environment,
			api_key_encrypted, secret_key_encrypted, passphrase_encrypted, bearer_token_encrypted,
			can_read, can_trade_spot, can_trade_derivatives, can_withdraw, can_onchain,
			status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`

	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		conn.UserID,
		conn.Label,
		conn.Provider,
		conn.APIFamily,
		conn.Environment,
		conn.APIKey,
		conn.SecretKey,
		conn.Passphrase,
		conn.BearerToken,
		conn.CanRead,
		conn.CanTradeSpot,
		conn.CanTradeDerivatives,
		conn.CanWithdraw,
		conn.CanOnchain,
		conn.Status,
		conn.LastError,
		conn.CreatedAt,
		conn.UpdatedAt,
	).Scan(&conn.ID)

	if err != nil {
		return err
	}

	return nil
}

func scanConnection(row interface{ Scan(...interface{}) error }) (*models.Connection, error) {
	conn := &models.Connection{}
	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Label,
		&conn.Provider,
		&conn.APIFamily,
		&conn.Environment,
		&conn.APIKey,
		&conn.SecretKey,
		&conn.Passphrase,
		&conn.BearerToken,
		&conn.CanRead,
		&conn.CanTradeSpot,
		&conn.CanTradeDerivatives,
		&conn.CanWithdraw,
		&conn.CanOnchain,
		&conn.Status,
		&conn.LastError,
		&conn.LastSyncAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// GetByID возвращает подключение по ID
func (r *ConnectionRepository) GetByID(id int) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	conn, err := scanConnection(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}

	return conn, nil
}

// GetByUserID возвращает все подключения пользователя
func (r *ConnectionRepository) GetByUserID(userID string) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return connections, nil
}

// GetActive возвращает подключения в статусе connected.
// Используется планировщиком фоновой сверки балансов.
func (r *ConnectionRepository) GetActive() ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE status = $1 ORDER BY id`

	rows, err := r.db.Query(query, models.ConnectionStatusConnected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return connections, nil
}

// UpdateStatus обновляет статус подключения и сообщение последней ошибки
func (r *ConnectionRepository) UpdateStatus(id int, status, lastError string) error {
	query := `
		UPDATE connections
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, status, lastError, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// UpdateCredentials заменяет зашифрованные учетные данные подключения
func (r *ConnectionRepository) UpdateCredentials(id int, apiKey, secretKey, passphrase, bearerToken string) error {
	query := `
		UPDATE connections
		SET api_key_encrypted = $1, secret_key_encrypted = $2,
			passphrase_encrypted = $3, bearer_token_encrypted = $4, updated_at = $5
		WHERE id = $6`

	result, err := r.db.Exec(query, apiKey, secretKey, passphrase, bearerToken, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// SetLastSync проставляет время последней успешной сверки балансов
func (r *ConnectionRepository) SetLastSync(id int, syncedAt time.Time) error {
	query := `
		UPDATE connections
		SET last_sync_at = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, syncedAt, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// Delete удаляет подключение вместе с зашифрованными секретами
func (r *ConnectionRepository) Delete(id int) error {
	query := `DELETE FROM connections WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrConnectionNotFound
	}

	return nil
}
