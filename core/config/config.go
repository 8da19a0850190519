// Package config provides environment-based configuration for the
// Pathkeep server.
//
// Configuration is loaded from environment variables using Viper, with
// sensible defaults for development.
//
// # Environment Variables
//
//   - DB_TYPE: Database type (sqlite, postgres, mysql). Default: sqlite
//   - DSN: Database connection string. Default: pathkeep.db
//   - SKIP_AUTO_MIGRATE: Skip automatic database migrations. Default: false
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: HTTP server port. Default: 8080
//   - ACL_NAME: Name of this ACL instance (max 100 chars)
//   - ACL_DESCRIPTION: Description of this ACL instance (max 1000 chars)
//   - OPERATOR: Principal initially permitted to mutate the ACL.
//     Default: "root"
//   - OPERATOR_KIND: "address" for a plain principal, "acl" to delegate
//     the check to another Pathkeep instance (OPERATOR is then its base
//     URL). Default: address
//   - JWT_SECRET: HS256 secret for operator bearer tokens
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Port            int    `mapstructure:"PORT"`
	ACLName         string `mapstructure:"ACL_NAME"`
	ACLDescription  string `mapstructure:"ACL_DESCRIPTION"`
	Operator        string `mapstructure:"OPERATOR"`
	OperatorKind    string `mapstructure:"OPERATOR_KIND"`
	JWTSecret       string `mapstructure:"JWT_SECRET"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DSN", "pathkeep.db")
	viper.SetDefault("SKIP_AUTO_MIGRATE", false)
	viper.SetDefault("OPERATOR", "root")
	viper.SetDefault("OPERATOR_KIND", "address")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
