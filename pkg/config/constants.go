package config

const (
	EnvPrefix = "royaltyhub"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ROYALTYHUB_DB_DSN"
	EnvDBHost = "ROYALTYHUB_DB_HOST"
	EnvDBUser = "ROYALTYHUB_DB_USER"
	EnvDBName = "ROYALTYHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
