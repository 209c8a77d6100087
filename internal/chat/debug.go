package chat

import (
	"log"
	"os"
	"strings"
)

var chatDebugEnabled = strings.EqualFold(os.Getenv("VERSECHAT_CHAT_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if chatDebugEnabled {
		log.Printf(format, args...)
	}
}
