package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func ProviderSettingsKey(key string) string {
	return fmt.Sprintf("provider:%s", key)
}

func RefundKey(reference string) string {
	return fmt.Sprintf("refund:%s", reference)
}
