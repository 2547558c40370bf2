package store

import (
	"fmt"
	"strings"
)

// Composite key layout. The zero-padded sequence keeps Badger's
// lexicographical iteration order equal to append order.
//
//	msg:{pair}:{seq}              message record (pair = sorted "a|b")
//	mid:{uuid}                    message id -> primary key
//	unread:{recipient}|{sender}:{seq}  unread index -> primary key
//	conv:{user}|{counterpart}     latest pair message -> primary key
const (
	msgPrefix    = "msg:"
	idPrefix     = "mid:"
	unreadPrefix = "unread:"
	convPrefix   = "conv:"

	seqKey = "seq:message"
)

// pairKey normalizes a participant pair so both directions of a
// conversation share one prefix.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func msgKey(pair string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", msgPrefix, pair, seq))
}

func historyScanPrefix(a, b string) []byte {
	return []byte(msgPrefix + pairKey(a, b) + ":")
}

func idKey(id string) []byte {
	return []byte(idPrefix + id)
}

func unreadKey(recipientID, senderID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s|%s:%020d", unreadPrefix, recipientID, senderID, seq))
}

func unreadScanPrefix(recipientID, senderID string) []byte {
	return []byte(unreadPrefix + recipientID + "|" + senderID + ":")
}

func convKey(userID, counterpartID string) []byte {
	return []byte(convPrefix + userID + "|" + counterpartID)
}

func convScanPrefix(userID string) []byte {
	return []byte(convPrefix + userID + "|")
}

// validID rejects identities that would collide with the key separators
// above, plus the obviously broken empty/oversized ones.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "|: \t\r\n")
}
