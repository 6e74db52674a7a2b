package database

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// SessionTenantKey is the session value holding the signed-in tenant id
const SessionTenantKey = "tenant_id"

// SessionStore implements gorilla/sessions.Store on the sessions table.
// The cookie carries only the encoded session id; values live in the database.
type SessionStore struct {
	db      *DB
	codecs  []securecookie.Codec
	options *sessions.Options
}

// NewSessionStore creates a database-backed session store
func NewSessionStore(db *DB, secure bool, keyPairs ...[]byte) *SessionStore {
	return &SessionStore{
		db:     db,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 14,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// Get returns a session for the given name after adding it to the registry
func (s *SessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the stored session named by the request cookie, or a fresh one.
// Unknown, expired or tampered cookies silently yield a fresh session.
func (s *SessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var sessionID string
	if err := securecookie.DecodeMulti(name, cookie.Value, &sessionID, s.codecs...); err != nil {
		return session, nil
	}

	data, err := s.load(r.Context(), sessionID)
	if err != nil {
		return session, nil
	}

	// Numbers stay json.Number so ids survive the round trip
	var values map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return session, nil
	}
	for k, v := range values {
		session.Values[k] = v
	}

	session.ID = sessionID
	session.IsNew = false
	return session, nil
}

// Save persists the session, or deletes it when MaxAge is negative
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.delete(ctx, session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		session.ID = id
	}

	// gorilla uses interface{} keys; only string keys are persisted
	values := make(map[string]interface{}, len(session.Values))
	for k, v := range session.Values {
		if key, ok := k.(string); ok {
			values[key] = v
		}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(time.Duration(session.Options.MaxAge) * time.Second)
	tenantID, _ := SessionTenantID(session)
	if err := s.save(ctx, session.ID, tenantID, data, expiresAt); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// SessionTenantID extracts the tenant id stored in a session
func SessionTenantID(session *sessions.Session) (int64, bool) {
	switch v := session.Values[SessionTenantKey].(type) {
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case float64:
		return int64(v), v > 0
	case json.Number:
		id, err := v.Int64()
		return id, err == nil && id > 0
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *SessionStore) save(ctx context.Context, sessionID string, tenantID int64, data []byte, expiresAt time.Time) error {
	var tenant interface{}
	if tenantID > 0 {
		tenant = tenantID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, tenant_id, data, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			data = excluded.data,
			expires_at = excluded.expires_at
	`, sessionID, tenant, string(data), expiresAt)
	return err
}

func (s *SessionStore) load(ctx context.Context, sessionID string) ([]byte, error) {
	var data string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT data, expires_at FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("session expired")
	}
	return []byte(data), nil
}

func (s *SessionStore) delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// RevokeTenantSessions signs a tenant out everywhere
func (s *SessionStore) RevokeTenantSessions(ctx context.Context, tenantID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CleanupExpiredSessions removes expired sessions; run it periodically
func (s *SessionStore) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
