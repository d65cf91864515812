// encoding.go — обработчик /encoding/convert: загрузка документа
// дашборда из файла в произвольной кодировке.
package handlers

import (
	"io"
	"net/http"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
	"github.com/bigkaa/golinkboard/internal/service"
)

// ConvertEncoding — POST /encoding/convert.
// Принимает сырые байты файла, определяет кодировку, перекодирует
// в UTF-8 и возвращает документ с обнаруженной кодировкой. Состояние
// при этом не сохраняется: фронтенд показывает предпросмотр
// и сохраняет сам.
func (h *APIHandler) ConvertEncoding(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStateSize+1))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения тела запроса")
		return
	}
	if len(body) > maxStateSize {
		apierrors.ValidationError(w, "Файл слишком большой")
		return
	}

	result, err := service.DecodeImport(body)
	if err != nil {
		h.writeServiceError(w, err, "encoding.convert")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
