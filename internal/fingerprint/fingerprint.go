// Package fingerprint вычисляет отпечаток адреса доставки для группировки заказов.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/mmeshcher/shipsync-system/internal/model"
)

// FromAddress возвращает отпечаток адреса: hex(md5(address1 + zip)).
// Отпечаток намеренно грубый: два адреса с одинаковой первой строкой и
// индексом считаются одним местом доставки независимо от города и страны.
func FromAddress(addr model.Address) string {
	sum := md5.Sum([]byte(addr.Address1 + addr.Zip))
	return hex.EncodeToString(sum[:])
}
