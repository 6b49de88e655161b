package booking

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"gorm.io/gorm"

	"ticketconcierge/internal/bookingerr"
)

const codeGenerationAttempts = 10

// generateUniqueCodes draws n globally-unique XXXX-XXXX hex codes (spec
// §4.7 step 3). Generation happens outside any transaction — the
// uniqueness constraint on Ticket.UniqueCode is the actual guarantee;
// this loop only avoids handing the transaction a code collision it would
// have to retry from scratch.
func generateUniqueCodes(db *gorm.DB, n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]bool, n)

	for len(codes) < n {
		code, err := drawCode(db, seen)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		seen[code] = true
	}
	return codes, nil
}

func drawCode(db *gorm.DB, seen map[string]bool) (string, error) {
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", bookingerr.Wrap(bookingerr.InternalError, err)
		}
		if seen[code] {
			continue
		}

		var count int64
		if err := db.Model(&Ticket{}).Where("unique_code = ?", code).Count(&count).Error; err != nil {
			return "", bookingerr.Wrap(bookingerr.InternalError, err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", bookingerr.New(bookingerr.CodeGenerationExhausted, "could not draw a unique ticket code after 10 attempts")
}

func randomCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	hexStr := strings.ToUpper(hex.EncodeToString(buf))
	return hexStr[:4] + "-" + hexStr[4:], nil
}
