package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// Ошибки сервиса подключений
var (
	ErrCredentialsRejected = errors.New("exchange rejected the credentials")
	ErrOAuthNotPending     = errors.New("connection is not awaiting oauth completion")
)

// ConnectRequest - входные параметры создания подключения.
// Учетные данные приходят в открытом виде и живут только внутри вызова:
// в БД попадают уже зашифрованными.
type ConnectRequest struct {
	Label       string `json:"label"`
	Provider    string `json:"provider"`
	APIFamily   string `json:"api_family"`
	Environment string `json:"environment"`

	APIKey      string `json:"api_key"`
	SecretKey   string `json:"secret_key"`
	Passphrase  string `json:"passphrase,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`

	CanRead             bool `json:"can_read"`
	CanTradeSpot        bool `json:"can_trade_spot"`
	CanTradeDerivatives bool `json:"can_trade_derivatives"`
	CanWithdraw         bool `json:"can_withdraw"`
	CanOnchain          bool `json:"can_onchain"`
}

// ConnectionService управляет жизненным циклом подключений к биржам:
// проверка учетных данных, шифрование, хранение, построение клиентов.
// Реализует trading.ClientResolver.
type ConnectionService struct {
	connections ConnectionRepositoryInterface
	balances    BalanceRepositoryInterface
	vault       VaultInterface

	// newClient подменяется в тестах, чтобы не ходить на реальные биржи
	newClient func(exchange.ClientConfig) (exchange.ExchangeClient, error)
}

// NewConnectionService создает новый сервис подключений
func NewConnectionService(connections ConnectionRepositoryInterface, balances BalanceRepositoryInterface, vault VaultInterface) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		balances:    balances,
		vault:       vault,
		newClient:   exchange.NewClient,
	}
}

// Connect создает подключение к бирже.
//
// Порядок важен: учетные данные сначала проверяются против биржи
// (открытым текстом, в памяти), и только после успешной проверки
// шифруются и сохраняются. Отклоненные ключи в БД не попадают.
func (s *ConnectionService) Connect(ctx context.Context, userID string, req *ConnectRequest) (*models.Connection, error) {
	provider := strings.ToLower(req.Provider)
	family := strings.ToLower(req.APIFamily)

	// 1. Проверяем, что вариант (провайдер, семейство) вообще поддерживается
	if !exchange.IsSupported(provider, family) {
		return nil, fmt.Errorf("%w: %s/%s (supported: %s)",
			exchange.ErrUnsupportedConfiguration, provider, family,
			strings.Join(exchange.SupportedVariants(), ", "))
	}

	conn := &models.Connection{
		UserID:              userID,
		Label:               req.Label,
		Provider:            provider,
		APIFamily:           family,
		Environment:         strings.ToLower(req.Environment),
		CanRead:             req.CanRead,
		CanTradeSpot:        req.CanTradeSpot,
		CanTradeDerivatives: req.CanTradeDerivatives,
		CanWithdraw:         req.CanWithdraw,
		CanOnchain:          req.CanOnchain,
	}

	// 2. Coinbase Advanced через OAuth: секрета еще нет, токен получит
	//    CompleteOAuth. Подключение сохраняется в pending_oauth без проверки.
	if provider == models.ProviderCoinbase && family == models.FamilyAdvanced &&
		req.SecretKey == "" && req.BearerToken == "" {
		conn.Status = models.ConnectionStatusPendingOAuth

		if err := s.encryptInto(conn, req.APIKey, "", "", ""); err != nil {
			return nil, err
		}
		if err := s.connections.Create(conn); err != nil {
			return nil, fmt.Errorf("failed to save connection: %w", err)
		}

		log.Printf("Connection %d created for user %s: %s/%s awaiting oauth",
			conn.ID, userID, provider, family)
		return conn, nil
	}

	// 3. Проверяем учетные данные живым запросом к бирже
	client, err := s.newClient(exchange.ClientConfig{
		Provider:    provider,
		APIFamily:   family,
		Environment: conn.Environment,
		Credentials: exchange.Credentials{
			APIKey:      req.APIKey,
			Secret:      req.SecretKey,
			Passphrase:  req.Passphrase,
			BearerToken: req.BearerToken,
		},
	})
	if err != nil {
		return nil, err
	}

	if !client.TestConnection(ctx) {
		return nil, ErrCredentialsRejected
	}

	// 4. Шифруем и сохраняем
	conn.Status = models.ConnectionStatusConnected
	if err := s.encryptInto(conn, req.APIKey, req.SecretKey, req.Passphrase, req.BearerToken); err != nil {
		return nil, err
	}
	if err := s.connections.Create(conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	log.Printf("Connection %d created for user %s: %s/%s/%s",
		conn.ID, userID, provider, family, conn.Environment)
	return conn, nil
}

// CompleteOAuth завершает OAuth flow: проверяет полученный bearer-токен
// против биржи и переводит подключение из pending_oauth в connected.
func (s *ConnectionService) CompleteOAuth(ctx context.Context, userID string, connectionID int, bearerToken string) (*models.Connection, error) {
	conn, err := s.getOwned(userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != models.ConnectionStatusPendingOAuth {
		return nil, ErrOAuthNotPending
	}

	apiKey, err := s.decryptField(conn.APIKey)
	if err != nil {
		return nil, err
	}

	client, err := s.newClient(exchange.ClientConfig{
		Provider:    conn.Provider,
		APIFamily:   conn.APIFamily,
		Environment: conn.Environment,
		Credentials: exchange.Credentials{
			APIKey:      apiKey,
			BearerToken: bearerToken,
		},
	})
	if err != nil {
		return nil, err
	}
	if !client.TestConnection(ctx) {
		return nil, ErrCredentialsRejected
	}

	encToken, err := s.vault.Encrypt(bearerToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt bearer token: %w", err)
	}
	if err := s.connections.UpdateCredentials(connectionID, conn.APIKey, conn.SecretKey, conn.Passphrase, encToken); err != nil {
		return nil, err
	}
	if err := s.connections.UpdateStatus(connectionID, models.ConnectionStatusConnected, ""); err != nil {
		return nil, err
	}

	log.Printf("Connection %d oauth completed for user %s", connectionID, userID)
	return s.connections.GetByID(connectionID)
}

// UpdateCredentials заменяет учетные данные подключения.
// Новые ключи проверяются против биржи до записи, как при Connect.
func (s *ConnectionService) UpdateCredentials(ctx context.Context, userID string, connectionID int, creds exchange.Credentials) error {
	conn, err := s.getOwned(userID, connectionID)
	if err != nil {
		return err
	}

	client, err := s.newClient(exchange.ClientConfig{
		Provider:    conn.Provider,
		APIFamily:   conn.APIFamily,
		Environment: conn.Environment,
		Credentials: creds,
	})
	if err != nil {
		return err
	}
	if !client.TestConnection(ctx) {
		return ErrCredentialsRejected
	}

	updated := &models.Connection{}
	if err := s.encryptInto(updated, creds.APIKey, creds.Secret, creds.Passphrase, creds.BearerToken); err != nil {
		return err
	}
	if err := s.connections.UpdateCredentials(connectionID, updated.APIKey, updated.SecretKey, updated.Passphrase, updated.BearerToken); err != nil {
		return err
	}

	// Рабочие ключи снимают статус ошибки, если он был
	return s.connections.UpdateStatus(connectionID, models.ConnectionStatusConnected, "")
}

// TestCredentials проверяет учетные данные живым запросом к бирже,
// ничего не сохраняя. Возвращает false при любой ошибке - невалидный
// вариант, отказ аутентификации, сетевой сбой.
func (s *ConnectionService) TestCredentials(ctx context.Context, provider, family, environment string, creds exchange.Credentials) bool {
	client, err := s.newClient(exchange.ClientConfig{
		Provider:    strings.ToLower(provider),
		APIFamily:   strings.ToLower(family),
		Environment: strings.ToLower(environment),
		Credentials: creds,
	})
	if err != nil {
		return false
	}
	return client.TestConnection(ctx)
}

// Test выполняет проверку сохраненных учетных данных живым запросом
func (s *ConnectionService) Test(ctx context.Context, userID string, connectionID int) (bool, error) {
	if _, err := s.getOwned(userID, connectionID); err != nil {
		return false, err
	}
	client, _, err := s.ResolveClient(ctx, connectionID)
	if err != nil {
		return false, err
	}
	return client.TestConnection(ctx), nil
}

// List возвращает подключения пользователя
func (s *ConnectionService) List(userID string) ([]*models.Connection, error) {
	return s.connections.GetByUserID(userID)
}

// Get возвращает подключение пользователя по ID
func (s *ConnectionService) Get(userID string, connectionID int) (*models.Connection, error) {
	return s.getOwned(userID, connectionID)
}

// Disconnect удаляет подключение вместе с его балансами и секретами
func (s *ConnectionService) Disconnect(userID string, connectionID int) error {
	if _, err := s.getOwned(userID, connectionID); err != nil {
		return err
	}
	if err := s.balances.DeleteByConnection(connectionID); err != nil {
		return fmt.Errorf("failed to delete balances: %w", err)
	}
	if err := s.connections.Delete(connectionID); err != nil {
		return err
	}

	log.Printf("Connection %d deleted for user %s", connectionID, userID)
	return nil
}

// ResolveClient загружает подключение, расшифровывает секреты и строит
// клиента биржи. Расшифрованные ключи живут только внутри клиента.
func (s *ConnectionService) ResolveClient(ctx context.Context, connectionID int) (exchange.ExchangeClient, *models.Connection, error) {
	conn, err := s.connections.GetByID(connectionID)
	if err != nil {
		return nil, nil, err
	}

	creds := exchange.Credentials{}
	if creds.APIKey, err = s.decryptField(conn.APIKey); err != nil {
		return nil, nil, err
	}
	if creds.Secret, err = s.decryptField(conn.SecretKey); err != nil {
		return nil, nil, err
	}
	if creds.Passphrase, err = s.decryptField(conn.Passphrase); err != nil {
		return nil, nil, err
	}
	if creds.BearerToken, err = s.decryptField(conn.BearerToken); err != nil {
		return nil, nil, err
	}

	client, err := s.newClient(exchange.ClientConfig{
		Provider:    conn.Provider,
		APIFamily:   conn.APIFamily,
		Environment: conn.Environment,
		Credentials: creds,
	})
	if err != nil {
		return nil, nil, err
	}

	return client, conn, nil
}

// getOwned возвращает подключение, только если оно принадлежит пользователю.
// Чужое подключение неотличимо от несуществующего.
func (s *ConnectionService) getOwned(userID string, connectionID int) (*models.Connection, error) {
	conn, err := s.connections.GetByID(connectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, repository.ErrConnectionNotFound
	}
	return conn, nil
}

// encryptInto шифрует непустые секреты и кладет их в поля подключения
func (s *ConnectionService) encryptInto(conn *models.Connection, apiKey, secret, passphrase, bearerToken string) error {
	var err error
	if conn.APIKey, err = s.encryptField(apiKey); err != nil {
		return err
	}
	if conn.SecretKey, err = s.encryptField(secret); err != nil {
		return err
	}
	if conn.Passphrase, err = s.encryptField(passphrase); err != nil {
		return err
	}
	if conn.BearerToken, err = s.encryptField(bearerToken); err != nil {
		return err
	}
	return nil
}

// encryptField шифрует значение; пустая строка остается пустой
func (s *ConnectionService) encryptField(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	encrypted, err := s.vault.Encrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return encrypted, nil
}

// decryptField расшифровывает значение; пустая строка остается пустой
func (s *ConnectionService) decryptField(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	plaintext, err := s.vault.Decrypt(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return plaintext, nil
}
