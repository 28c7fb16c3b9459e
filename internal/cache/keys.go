package cache

import (
	"fmt"
	"time"
)

const (
	userKeyFormat      = "user:%d"
	noticeKeyFormat    = "notice:%d"
	bestListKeyFormat  = "boards:best:v%d:%s"
	bestListVersionKey = "boards:best:version"
)

const (
	UserTTL     = 5 * time.Minute
	NoticeTTL   = 10 * time.Minute
	BestListTTL = time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(userKeyFormat, userID)
}

func NoticeKey(noticeID uint) string {
	return fmt.Sprintf(noticeKeyFormat, noticeID)
}

// BestListKey names the cached first page of best boards for one ordering,
// scoped to the current list version.
func BestListKey(version int64, ordering string) string {
	return fmt.Sprintf(bestListKeyFormat, version, ordering)
}
