// Package storage is the device-local key-value store backing the session.
// Four keys exist today: token, refreshToken, user, theme.
package storage

// Well-known keys.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyTheme        = "theme"
)

// Store is the persistent key-value surface the session holder writes
// through. Get returns ("", false, nil) for a missing key.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
	Close() error
}
