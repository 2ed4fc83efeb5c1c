package server

import (
	"time"

	"github.com/Savvy-Save/Aetherium/internal/auth"
	"github.com/Savvy-Save/Aetherium/internal/session"
)

type SeedUser struct {
	Username string
	Email    string
	Password string
	Roles    []auth.Role
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Pass     string
	From     string
	Security string
}

type Config struct {
	MongoURI        string
	MongoDB         string
	UsersCollection string
	JWTIssuer       string
	TokenTTL        time.Duration
	TOTPIssuer      string
	Session         session.Policy
	SMTP            SMTPConfig
	SeedUsers       []SeedUser
}

func (c *Config) setDefaults() {
	if c.UsersCollection == "" {
		c.UsersCollection = "users"
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = "aetherium-backend"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
	if c.TOTPIssuer == "" {
		c.TOTPIssuer = "Aetherium"
	}
	if c.Session.LockTimeout <= 0 {
		c.Session = session.DefaultPolicy()
	}
	if c.SMTP.Security == "" {
		c.SMTP.Security = "starttls"
	}
}
