package sales

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTransactionNumber builds "TXN-<yyyymmdd>-<hhmmss.micro>-<6 hex>".
func NewTransactionNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "TXN-" + at.UTC().Format("20060102-150405.000000") + "-" + suffix
}
