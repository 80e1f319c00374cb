package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"parley/internal/auth"
	"parley/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketTokens        = []byte("tokens")
	bucketPushSubs      = []byte("push_subscriptions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketUsers,
			bucketConversations,
			bucketMessages,
			bucketTokens,
			bucketPushSubs,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertCredentials stores new or updated user credentials.
func (s *BboltStorage) UpsertCredentials(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:           credentials.ID,
			Name:         credentials.Name,
			Email:        credentials.Email,
			ProfileImage: credentials.ProfileImage,
			PasswordHash: credentials.PasswordHash,
			CreatedAt:    credentials.CreatedAt,
		}

		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

// ListCredentials returns all user credentials stored in the database.
// Used to warm the auth service cache at startup.
func (s *BboltStorage) ListCredentials() ([]auth.UserCredentials, error) {
	var credentials []auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			credentials = append(credentials, auth.UserCredentials{
				User: models.User{
					ID:           dbUser.ID,
					Name:         dbUser.Name,
					Email:        dbUser.Email,
					ProfileImage: dbUser.ProfileImage,
				},
				PasswordHash: dbUser.PasswordHash,
				CreatedAt:    dbUser.CreatedAt,
			})
			return nil
		})
	})
	return credentials, err
}

// GetUser returns the public profile of one user.
func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = models.User{
			ID:           dbUser.ID,
			Name:         dbUser.Name,
			Email:        dbUser.Email,
			ProfileImage: dbUser.ProfileImage,
		}
		return nil
	})
	return user, err
}

// SearchUsers returns up to limit users whose name or email contains
// query case-insensitively, excluding excludeID (the caller).
func (s *BboltStorage) SearchUsers(query, excludeID string, limit int) ([]models.User, error) {
	needle := strings.ToLower(query)
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		c := b.Cursor()
		for k, v := c.First(); k != nil && len(users) < limit; k, v = c.Next() {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbUser.ID == excludeID {
				continue
			}
			if !strings.Contains(strings.ToLower(dbUser.Name), needle) &&
				!strings.Contains(strings.ToLower(dbUser.Email), needle) {
				continue
			}
			users = append(users, models.User{
				ID:           dbUser.ID,
				Name:         dbUser.Name,
				Email:        dbUser.Email,
				ProfileImage: dbUser.ProfileImage,
			})
		}
		return nil
	})
	return users, err
}

// UpsertConversation saves a conversation to the database.
func (s *BboltStorage) UpsertConversation(conv models.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		dbConv := DBConversation{
			ID:        conv.ID,
			Name:      conv.Name,
			IsGroup:   conv.IsGroup,
			AdminID:   conv.AdminID,
			Members:   conv.Members,
			CreatedAt: conv.CreatedAt,
		}
		data, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbConv.Key(), data)
	})
}

// GetConversation returns one conversation by ID.
func (s *BboltStorage) GetConversation(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConversations).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbConv DBConversation
		if err := dbConv.UnmarshalBinary(data); err != nil {
			return err
		}
		conv = dbConvToModel(dbConv)
		return nil
	})
	return conv, err
}

// ListConversations returns every conversation the user is a member of,
// newest first.
func (s *BboltStorage) ListConversations(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		return b.ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conv := dbConvToModel(dbConv)
			if conv.HasMember(userID) {
				convs = append(convs, conv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt > convs[j].CreatedAt
	})
	return convs, nil
}

// AppendMessage stores a message under its conversation, assigning the
// next sequence number. The returned message carries the assigned Seq.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	if message.ChatID == "" {
		return models.Message{}, errors.New("message missing chatID")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketConversations).Get([]byte(message.ChatID)) == nil {
			return models.ErrNotFound
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.ChatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return err
		}
		message.Seq = int64(seq)

		dbMessage := DBMessage{
			ID:        message.ID,
			Seq:       message.Seq,
			ChatID:    message.ChatID,
			SenderID:  message.Sender.ID,
			Content:   message.Content,
			CreatedAt: message.CreatedAt,
		}

		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return chatBucket.Put(dbMessage.Key(), data)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessagesPage returns one page of a conversation's history together
// with the total message count. Pages are 1-indexed, page 1 being the
// newest pageSize messages; within a page messages are chronological.
func (s *BboltStorage) ListMessagesPage(chatID string, page, pageSize int) ([]models.Message, int, error) {
	if page < 1 {
		return nil, 0, fmt.Errorf("page must be >= 1, got %d", page)
	}

	var messages []models.Message
	var total int
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil // No messages for this chat yet
		}

		// Seq numbers are dense (1..N, no deletes), so the bucket
		// sequence doubles as the total count.
		total = int(chatBucket.Sequence())

		hi := total - (page-1)*pageSize // inclusive
		lo := hi - pageSize + 1         // inclusive
		if hi < 1 {
			return nil
		}
		if lo < 1 {
			lo = 1
		}

		users := tx.Bucket(bucketUsers)

		minKey := make([]byte, 8)
		binary.BigEndian.PutUint64(minKey, uint64(lo))
		maxKey := make([]byte, 8)
		binary.BigEndian.PutUint64(maxKey, uint64(hi))

		c := chatBucket.Cursor()
		for k, v := c.Seek(minKey); k != nil && bytes.Compare(k, maxKey) <= 0; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}

			sender := models.User{ID: dbMsg.SenderID}
			if data := users.Get([]byte(dbMsg.SenderID)); data != nil {
				var dbUser DBUser
				if err := dbUser.UnmarshalBinary(data); err != nil {
					return err
				}
				sender = models.User{
					ID:           dbUser.ID,
					Name:         dbUser.Name,
					Email:        dbUser.Email,
					ProfileImage: dbUser.ProfileImage,
				}
			}

			messages = append(messages, models.Message{
				ID:        dbMsg.ID,
				Seq:       dbMsg.Seq,
				ChatID:    dbMsg.ChatID,
				Sender:    sender,
				Content:   dbMsg.Content,
				CreatedAt: dbMsg.CreatedAt,
			})
		}
		return nil
	})
	return messages, total, err
}

func (s *BboltStorage) UpsertToken(userID string, tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		dbToken := &DBToken{
			UserID: userID,
			Token:  tokenHash,
		}
		data, err := dbToken.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbToken.Key(), data)
	})
}

func (s *BboltStorage) DeleteToken(tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(tokenHash))
	})
}

func (s *BboltStorage) ListTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		return b.ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens[dbToken.Token] = dbToken.UserID
			return nil
		})
	})
	return tokens, err
}

func (s *BboltStorage) UpsertPushSubscription(sub DBPushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := sub.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPushSubs).Put(sub.Key(), data)
	})
}

func (s *BboltStorage) DeletePushSubscription(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPushSubs).Delete([]byte(id))
	})
}

// ListPushSubscriptions returns all push subscriptions for one user.
func (s *BboltStorage) ListPushSubscriptions(userID string) ([]DBPushSubscription, error) {
	var subs []DBPushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPushSubs)
		return b.ForEach(func(k, v []byte) error {
			var sub DBPushSubscription
			if err := sub.UnmarshalBinary(v); err != nil {
				return err
			}
			if sub.UserID == userID {
				subs = append(subs, sub)
			}
			return nil
		})
	})
	return subs, err
}

func dbConvToModel(dbConv DBConversation) models.Conversation {
	return models.Conversation{
		ID:        dbConv.ID,
		Name:      dbConv.Name,
		IsGroup:   dbConv.IsGroup,
		AdminID:   dbConv.AdminID,
		Members:   dbConv.Members,
		CreatedAt: dbConv.CreatedAt,
	}
}
