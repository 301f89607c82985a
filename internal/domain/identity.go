package domain

import (
	"encoding/base64"
	"encoding/json"
)

// errorKeySuffix — суффикс ключа error-записи.
// Error key выводится из cache key, а не хэшируется отдельно,
// чтобы оба ключа строились из одной идентичности.
const errorKeySuffix = "error"

// CacheKey строит стабильный ключ кэша из идентичности задачи.
//
// Идентичность сериализуется в канонический JSON-массив
// [task, user, args, kwargs]: encoding/json сортирует ключи map,
// поэтому порядок kwargs не влияет на результат. seq_id вырезается.
// Результат кодируется в base64 — ключ остаётся непрозрачной строкой
// фиксированного алфавита для memcached-подобных хранилищ.
func CacheKey(task string, call Call) string {
	call = call.StripSeqID()

	// nil и пустые args/kwargs сериализуются одинаково,
	// иначе структурно равные вызовы дали бы разные ключи.
	args := call.Args
	if args == nil {
		args = []string{}
	}
	kwargs := call.Kwargs
	if kwargs == nil {
		kwargs = map[string]string{}
	}

	idJSON, err := json.Marshal([]any{task, call.User, args, kwargs})
	if err != nil {
		// []any из строк и map[string]string не может не сериализоваться
		panic("domain: marshal task identity: " + err.Error())
	}

	return base64.StdEncoding.EncodeToString(idJSON)
}

// ErrorKey возвращает ключ error-записи для данного cache key.
func ErrorKey(cacheKey string) string {
	return cacheKey + errorKeySuffix
}
