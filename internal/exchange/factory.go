package exchange

import (
	"fmt"
	"sort"
	"strings"
)

// variantKey - ключ таблицы вариантов: провайдер + API-семейство.
// Окружение (prod|sandbox) выбирает базовый URL внутри варианта.
type variantKey struct {
	provider string
	family   string
}

// clientBuilders - явная таблица вариантов клиентов.
// Выбор варианта ТОЛЬКО по этой таблице: никакого угадывания по полям
// конфигурации. Неизвестная комбинация - ошибка, а не дефолт.
var clientBuilders = map[variantKey]func(ClientConfig) (ExchangeClient, error){
	{"coinbase", "legacy"}:   newCoinbaseLegacy,
	{"coinbase", "advanced"}: newCoinbaseAdvanced,
	{"binanceus", "spot"}:    newBinanceUS,
	{"kraken", "spot"}:       newKraken,
	{"bybit", "v5"}:          newBybit,
	{"simulation", "paper"}:  newSimulation,
}

// NewClient создает клиента биржи по нормализованной конфигурации.
// Возвращает ErrUnsupportedConfiguration для неизвестной комбинации
// (provider, apiFamily) или окружения.
func NewClient(cfg ClientConfig) (ExchangeClient, error) {
	cfg.Provider = strings.ToLower(cfg.Provider)
	cfg.APIFamily = strings.ToLower(cfg.APIFamily)
	cfg.Environment = strings.ToLower(cfg.Environment)

	if cfg.Environment != "prod" && cfg.Environment != "sandbox" {
		return nil, fmt.Errorf("%w: unknown environment %q", ErrUnsupportedConfiguration, cfg.Environment)
	}

	build, ok := clientBuilders[variantKey{cfg.Provider, cfg.APIFamily}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedConfiguration, cfg.Provider, cfg.APIFamily)
	}

	return build(cfg)
}

// IsSupported проверяет, есть ли вариант для пары (provider, apiFamily)
func IsSupported(provider, family string) bool {
	_, ok := clientBuilders[variantKey{strings.ToLower(provider), strings.ToLower(family)}]
	return ok
}

// SupportedVariants возвращает отсортированный список "provider/family"
// для сообщений об ошибках и ответов API
func SupportedVariants() []string {
	variants := make([]string, 0, len(clientBuilders))
	for key := range clientBuilders {
		variants = append(variants, key.provider+"/"+key.family)
	}
	sort.Strings(variants)
	return variants
}
