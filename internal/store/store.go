package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MessageStore persists directed messages in BadgerDB.
//
// Every append maintains three secondary indexes in the same transaction:
// a message-id pointer, an unread entry per (recipient, sender) and a
// latest-message pointer per (user, counterpart). Conversation summaries
// and unread counts then reduce to prefix scans instead of walks over the
// full log.
type MessageStore struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewMessageStore(db *badger.DB, log *slog.Logger) (*MessageStore, error) {
	seq, err := db.GetSequence([]byte(seqKey), 128)
	if err != nil {
		return nil, fmt.Errorf("open message sequence: %w", err)
	}
	return &MessageStore{db: db, seq: seq, log: log}, nil
}

// Close releases the unused part of the sequence lease. The caller owns
// the Badger handle itself.
func (s *MessageStore) Close() error {
	return s.seq.Release()
}

// Append validates and durably records a message. The returned Message
// carries the server-assigned id, timestamp and sequence, with Read=false.
func (s *MessageStore) Append(senderID, recipientID, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: empty content", ErrValidation)
	}
	if !validID(senderID) {
		return Message{}, fmt.Errorf("%w: malformed sender id %q", ErrValidation, senderID)
	}
	if !validID(recipientID) {
		return Message{}, fmt.Errorf("%w: malformed recipient id %q", ErrValidation, recipientID)
	}

	seq, err := s.seq.Next()
	if err != nil {
		return Message{}, fmt.Errorf("allocate message sequence: %w", err)
	}
	msg := Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
		Seq:         seq,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encode message: %w", err)
	}

	primary := msgKey(pairKey(senderID, recipientID), seq)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, value); err != nil {
			return err
		}
		if err := txn.Set(idKey(msg.ID), primary); err != nil {
			return err
		}
		if err := txn.Set(unreadKey(recipientID, senderID, seq), primary); err != nil {
			return err
		}
		if err := txn.Set(convKey(senderID, recipientID), primary); err != nil {
			return err
		}
		return txn.Set(convKey(recipientID, senderID), primary)
	})
	if err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}

	s.log.Debug("message appended", "id", msg.ID, "sender", senderID, "recipient", recipientID, "seq", seq)
	return msg, nil
}

// History returns every message between userA and userB, in either
// direction, ascending by append order.
func (s *MessageStore) History(userA, userB string) ([]Message, error) {
	if !validID(userA) || !validID(userB) {
		return nil, fmt.Errorf("%w: malformed user id", ErrValidation)
	}

	prefix := historyScanPrefix(userA, userB)
	var out []Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m Message
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return out, nil
}

// markReadBatchSize bounds how many messages one transaction flips, so a
// large backlog never trips Badger's transaction size limit.
const markReadBatchSize = 500

// MarkRead flips Read on every unread message from senderID to
// recipientID. Calling it again with nothing left to flip is a no-op.
// The backlog is worked off in bounded transactions; each flip is
// idempotent, so partial progress before an error is harmless.
func (s *MessageStore) MarkRead(senderID, recipientID string) error {
	prefix := unreadScanPrefix(recipientID, senderID)
	for {
		n, err := s.markReadBatch(prefix)
		if err != nil {
			return fmt.Errorf("mark conversation read: %w", err)
		}
		if n < markReadBatchSize {
			return nil
		}
	}
}

func (s *MessageStore) markReadBatch(prefix []byte) (int, error) {
	var flipped int
	err := s.db.Update(func(txn *badger.Txn) error {
		var indexKeys, primaryKeys [][]byte

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(indexKeys) < markReadBatchSize; it.Next() {
			item := it.Item()
			primary, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			indexKeys = append(indexKeys, item.KeyCopy(nil))
			primaryKeys = append(primaryKeys, primary)
		}
		it.Close()

		for i, primary := range primaryKeys {
			if err := setReadInTxn(txn, primary); err != nil {
				return err
			}
			if err := txn.Delete(indexKeys[i]); err != nil {
				return err
			}
		}
		flipped = len(indexKeys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

// MarkOneRead flips Read on a single message. Only the recipient may do
// so; repeating the call on an already-read message is a no-op.
func (s *MessageStore) MarkOneRead(messageID, requesterID string) (Message, error) {
	var msg Message
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, messageID)
		}
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		record, err := txn.Get(primary)
		if err != nil {
			return err
		}
		if err := record.Value(func(v []byte) error { return json.Unmarshal(v, &msg) }); err != nil {
			return err
		}
		if msg.RecipientID != requesterID {
			return fmt.Errorf("%w: message %s", ErrNotRecipient, messageID)
		}
		if msg.Read {
			return nil
		}
		msg.Read = true
		value, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(primary, value); err != nil {
			return err
		}
		return txn.Delete(unreadKey(msg.RecipientID, msg.SenderID, msg.Seq))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotRecipient) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("mark message read: %w", err)
	}
	return msg, nil
}

// ConversationsFor returns one summary per counterpart of userID, ordered
// by most recent message first. Only the latest-message pointers and the
// unread index are scanned; the message log itself is never walked.
func (s *MessageStore) ConversationsFor(userID string) ([]ConversationSummary, error) {
	prefix := convScanPrefix(userID)
	var out []ConversationSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			counterpart := string(item.Key()[len(prefix):])
			primary, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := txn.Get(primary)
			if err != nil {
				return err
			}
			var last Message
			if err := record.Value(func(v []byte) error { return json.Unmarshal(v, &last) }); err != nil {
				return err
			}
			out = append(out, ConversationSummary{
				CounterpartID: counterpart,
				LastMessage:   last,
				UnreadCount:   countKeys(txn, unreadScanPrefix(userID, counterpart)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastMessage.Seq > out[j].LastMessage.Seq })
	return out, nil
}

func setReadInTxn(txn *badger.Txn, primary []byte) error {
	item, err := txn.Get(primary)
	if err != nil {
		return err
	}
	var m Message
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
		return err
	}
	if m.Read {
		return nil
	}
	m.Read = true
	value, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Set(primary, value)
}

func countKeys(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}
