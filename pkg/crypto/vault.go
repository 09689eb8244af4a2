package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Ошибки шифрования
var (
	ErrNoKeyMaterial      = errors.New("vault key material is required")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
	ErrUnknownKeyVersion  = errors.New("ciphertext encrypted under unknown key version")
)

// keySize - размер ключа AES-256
const keySize = 32

// pbkdf2Iterations - количество итераций PBKDF2 при выводе ключа.
// Вызывается один раз при старте процесса, не на каждую операцию.
const pbkdf2Iterations = 4096

// Vault шифрует и расшифровывает API ключи бирж (AES-256-GCM).
//
// Формат ciphertext: "v<N>:" + base64(nonce + данные + auth tag)
// Версия в префиксе позволяет ротацию ключа: новые данные шифруются
// текущим ключом, старые читаются предыдущим без перешифровки всей БД.
//
// Ключи выводятся из произвольного секрета через PBKDF2-SHA256,
// поэтому VAULT_KEY не обязан быть ровно 32 байта.
type Vault struct {
	keys    map[int][]byte // версия -> производный ключ AES-256
	current int            // версия для шифрования новых данных
}

// NewVault создает vault с текущим ключом и (опционально) предыдущим.
//
// Параметры:
//   - currentKey: секрет текущей версии (обязателен)
//   - previousKey: секрет предыдущей версии ("" если ротации не было)
//   - currentVersion: номер текущей версии (минимум 1)
//
// Предыдущий ключ получает версию currentVersion-1 и используется
// ТОЛЬКО для расшифровки.
func NewVault(currentKey, previousKey string, currentVersion int) (*Vault, error) {
	if currentKey == "" {
		return nil, ErrNoKeyMaterial
	}
	if currentVersion < 1 {
		currentVersion = 1
	}

	v := &Vault{
		keys:    make(map[int][]byte),
		current: currentVersion,
	}
	v.keys[currentVersion] = deriveKey(currentKey, currentVersion)

	if previousKey != "" && currentVersion > 1 {
		v.keys[currentVersion-1] = deriveKey(previousKey, currentVersion-1)
	}

	return v, nil
}

// deriveKey выводит 32-байтный ключ AES из секрета.
// Версия входит в salt, чтобы ключи разных версий не совпадали.
func deriveKey(material string, version int) []byte {
	salt := []byte("tradedesk-vault-v" + strconv.Itoa(version))
	return pbkdf2.Key([]byte(material), salt, pbkdf2Iterations, keySize, sha256.New)
}

// Encrypt шифрует plaintext текущим ключом.
// Возвращает строку вида "v1:bm9uY2UuLi4=" для хранения в БД.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	key := v.keys[v.current]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	// Случайный nonce на каждую операцию
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// GCM добавляет аутентификационный тег автоматически
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return fmt.Sprintf("v%d:%s", v.current, base64.StdEncoding.EncodeToString(ciphertext)), nil
}

// Decrypt расшифровывает ciphertext, выбирая ключ по версии из префикса.
// Любой некорректный вход дает детерминированную ошибку, не панику.
func (v *Vault) Decrypt(envelope string) (string, error) {
	version, payload, err := parseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	key, ok := v.keys[version]
	if !ok {
		return "", ErrUnknownKeyVersion
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, data := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// CurrentVersion возвращает версию ключа для новых данных
func (v *Vault) CurrentVersion() int {
	return v.current
}

// parseEnvelope разбирает префикс "v<N>:" и возвращает версию и payload
func parseEnvelope(envelope string) (int, string, error) {
	if !strings.HasPrefix(envelope, "v") {
		return 0, "", ErrInvalidCiphertext
	}

	idx := strings.IndexByte(envelope, ':')
	if idx < 2 {
		return 0, "", ErrInvalidCiphertext
	}

	version, err := strconv.Atoi(envelope[1:idx])
	if err != nil || version < 1 {
		return 0, "", ErrInvalidCiphertext
	}

	return version, envelope[idx+1:], nil
}

// GenerateKey генерирует криптографически стойкий случайный секрет (32 байта)
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
