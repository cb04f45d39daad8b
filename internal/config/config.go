package config

type Config interface {
	EnvConfig
	IdentityConfig
	SessionConfig
}

type EnvConfig interface {
	GetAPIURL() string
	GetAppName() string
	GetTokenFile() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Identity
	Session
}

func New() Config {
	return mainConfig{}
}
