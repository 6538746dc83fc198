package draft

import (
	"fmt"
	"time"
)

// OrderNumber формирует номер заказа вида ORD-YYYYMMDD-HHMMSS-RRRR.
// suffix берётся по модулю 10000 и дополняется нулями слева.
func OrderNumber(at time.Time, suffix int) string {
	if suffix < 0 {
		suffix = -suffix
	}
	return fmt.Sprintf("ORD-%s-%04d", at.Format("20060102-150405"), suffix%10000)
}
