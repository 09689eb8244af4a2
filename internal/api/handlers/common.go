package handlers

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// json - быстрый кодек для сериализации HTTP ответов
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize ограничивает размер JSON body запроса
const maxBodySize = 1 << 20 // 1MB

// ErrorResponse - стандартный формат ответа об ошибке для всех endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse - стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondJSON сериализует payload и пишет его с указанным статусом
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError пишет ответ об ошибке в стандартном формате
func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, &ErrorResponse{Error: message, Code: code})
}

// decodeBody разбирает JSON body запроса в dst с лимитом размера
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	return json.Unmarshal(body, dst)
}
