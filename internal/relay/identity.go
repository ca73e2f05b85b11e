package relay

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	conversationKeyPrefix = "fb-"
	dateBucketLayout      = "20060102"
	anonymousPrefix       = "anonymous-"
)

// DateBucket formats t as YYYYMMDD in the server's local time zone.
func DateBucket(t time.Time) string {
	return t.Local().Format(dateBucketLayout)
}

// ResolveConversationKey derives the conversation key for an inbound event.
// A non-empty callID is used verbatim. Otherwise the key is
// "fb-<recipientId>-<senderId>-<YYYYMMDD>" for the calendar day of now, so a
// sender/page pair keeps one conversation per day. With no correlator at all
// a fresh unique id is returned.
func ResolveConversationKey(recipientID, senderID, callID string, now time.Time) string {
	if callID != "" {
		return callID
	}
	if recipientID == "" && senderID == "" {
		return uuid.NewString()
	}
	var b strings.Builder
	b.Grow(len(conversationKeyPrefix) + len(recipientID) + len(senderID) + len(dateBucketLayout) + 2)
	b.WriteString(conversationKeyPrefix)
	b.WriteString(recipientID)
	b.WriteByte('-')
	b.WriteString(senderID)
	b.WriteByte('-')
	b.WriteString(DateBucket(now))
	return b.String()
}

// UserReference maps a platform user id to the backend user reference.
// Unknown senders get a fresh anonymous reference that is never reused.
func UserReference(externalID string) string {
	if externalID = strings.TrimSpace(externalID); externalID != "" {
		return conversationKeyPrefix + externalID
	}
	return anonymousPrefix + uuid.NewString()
}
