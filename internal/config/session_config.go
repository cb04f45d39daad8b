package config

import "time"

type SessionConfig interface {
	GetRefreshTimeout() time.Duration
	GetUserSnapshotTTL() time.Duration
	GetRequestTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetRefreshTimeout bounds a single shared refresh call
func (Session) GetRefreshTimeout() time.Duration {
	return GetDurationEnv("REFRESH_TIMEOUT", 10*time.Second)
}

// GetUserSnapshotTTL is how long a fetched user profile is served from cache
func (Session) GetUserSnapshotTTL() time.Duration {
	return GetDurationEnv("USER_SNAPSHOT_TTL", 1*time.Minute)
}

func (Session) GetRequestTimeout() time.Duration {
	return GetDurationEnv("REQUEST_TIMEOUT", 30*time.Second)
}
