package zalopay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign возвращает hex(HMAC-SHA256(key, data)).
func Sign(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify сравнивает подпись побайтно за постоянное время. Регистр и
// пробелы не нормализуются.
func Verify(key, data, signature string) bool {
	return hmac.Equal([]byte(Sign(key, data)), []byte(signature))
}

// orderMACData собирает строку для подписи запроса на создание заказа:
// app_id|app_trans_id|app_user|amount|app_time|embed_data|item.
func orderMACData(o Order) string {
	return strings.Join([]string{
		o.AppID,
		o.AppTransID,
		o.AppUser,
		strconv.FormatInt(o.Amount, 10),
		strconv.FormatInt(o.AppTime, 10),
		o.EmbedData,
		o.Item,
	}, "|")
}
