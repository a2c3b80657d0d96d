// Package search resolves text queries to result pages, materializing
// short-lived result sessions for follow-up actions.
package search

import (
	"context"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/helper"
	"github.com/leafdriven/mediadex/model"
)

// SessionItem is one file handle held by a result session. It carries
// everything delivery needs so the bulk path never re-queries the index.
type SessionItem struct {
	FileUniqueID string `json:"file_unique_id"`
	FileID       string `json:"file_id"`
	FileRef      string `json:"file_ref"`
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
}

// ResultSession is the cache-only record behind pagination and send-all
// callbacks.
type ResultSession struct {
	PrincipalID int64         `json:"principal_id"`
	Query       string        `json:"query"`
	FileType    string        `json:"file_type"`
	Items       []SessionItem `json:"items"`
	Total       int           `json:"total"`
	Offset      int           `json:"offset"`
	CreatedAt   int64         `json:"created_at"`
}

// SessionStore persists result sessions in the cache under
// (principal, session id) with the configured TTL.
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(c *cache.Cache) *SessionStore {
	return &SessionStore{cache: c}
}

// Save materializes a session and returns its random 8-char id. Without a
// cache the session handle is still returned but follow-up actions will
// miss; callers treat that as an expired session.
func (s *SessionStore) Save(ctx context.Context, session *ResultSession) string {
	sid := helper.GenSessionID()
	session.CreatedAt = helper.GetTimestamp()
	if s.cache.Enabled() {
		s.cache.Set(ctx, cache.SessionKey(session.PrincipalID, sid), session, config.SessionTTL)
	}
	return sid
}

// Load fetches a session; a miss is NOT_FOUND, which the UI renders as an
// expired-results prompt.
func (s *SessionStore) Load(ctx context.Context, principalID int64, sid string) (*ResultSession, error) {
	var session ResultSession
	if !s.cache.GetInto(ctx, cache.SessionKey(principalID, sid), &session) {
		return nil, apperr.New(apperr.CodeNotFound, "result session %s expired", sid)
	}
	return &session, nil
}

// Delete drops a consumed session.
func (s *SessionStore) Delete(ctx context.Context, principalID int64, sid string) {
	if s.cache.Enabled() {
		s.cache.Delete(ctx, cache.SessionKey(principalID, sid))
	}
}

func sessionItems(files []*model.MediaFile) []SessionItem {
	items := make([]SessionItem, len(files))
	for i, f := range files {
		items[i] = SessionItem{
			FileUniqueID: f.FileUniqueID,
			FileID:       f.FileID,
			FileRef:      f.FileRef,
			FileName:     f.FileName,
			FileSize:     f.FileSize,
		}
	}
	return items
}
