package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxChannelLength  = 255
	MaxConsumerLength = 255

	// MinReplayOffset is the lowest from_seq accepted for replay. Channels
	// number their first message 0.
	MinReplayOffset int64 = 0
)

func NormalizeChannel(channel string) string {
	return strings.TrimSpace(channel)
}

func ValidateChannel(channel string) bool {
	return validName(NormalizeChannel(channel), MaxChannelLength)
}

func NormalizeConsumer(consumer string) string {
	return strings.TrimSpace(consumer)
}

func ValidateConsumer(consumer string) bool {
	return validName(NormalizeConsumer(consumer), MaxConsumerLength)
}

func ValidateFromSeq(fromSeq int64) bool {
	return fromSeq >= MinReplayOffset
}

func validName(s string, max int) bool {
	if s == "" || len(s) > max || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
