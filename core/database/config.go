package database

import (
	"fmt"
	"net/url"
)

// Config holds database connection settings shared across bots.
type Config struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	return c
}

// DSN renders the libpq keyword/value connection string.
func (c Config) DSN() string {
	c = c.withDefaults()
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		quoteDSN(c.User), quoteDSN(c.Password), c.Host, c.Port, quoteDSN(c.Name), c.SSLMode,
	)
}

// URL renders the connection string in the form golang-migrate expects.
func (c Config) URL() string {
	c = c.withDefaults()
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

func quoteDSN(v string) string {
	if v == "" {
		return "''"
	}
	needs := false
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			needs = true
			break
		}
	}
	if !needs {
		return v
	}
	out := make([]rune, 0, len(v)+2)
	out = append(out, '\'')
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
