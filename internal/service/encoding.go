// encoding.go — импорт документов дашборда из файлов в произвольной
// кодировке. Кодировка определяется эвристически, содержимое
// перекодируется в UTF-8 и проверяется как JSON.
package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

// ImportResult — результат импорта документа.
type ImportResult struct {
	// Encoding — обнаруженная кодировка исходных данных (верхний регистр)
	Encoding string `json:"encoding"`
	// Data — документ, перекодированный в UTF-8
	Data json.RawMessage `json:"data"`
}

// DecodeImport определяет кодировку данных, перекодирует их в UTF-8
// и проверяет, что результат — валидный JSON. Невалидный JSON после
// перекодирования — ErrInvalidJSON.
func DecodeImport(data []byte) (*ImportResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустые данные", ErrValidation)
	}

	enc, name, _ := charset.DetermineEncoding(data, "")
	if enc == nil {
		enc = unicode.UTF8
		name = "utf-8"
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("перекодирование из %s: %w", name, err)
	}

	// BOM мешает json.Valid
	decoded = stripBOM(decoded)

	if !json.Valid(decoded) {
		return nil, ErrInvalidJSON
	}

	return &ImportResult{
		Encoding: strings.ToUpper(name),
		Data:     decoded,
	}, nil
}

// stripBOM удаляет UTF-8 BOM из начала данных.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
