package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func StreamURLKey(videoID uuid.UUID) string {
	return fmt.Sprintf("stream:url:%s", videoID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
