package config

import (
	"encoding/base64"
	"fmt"
)

const (
	// GlobalChannelId is the public channel every user lands in. It is
	// created at startup if absent.
	GlobalChannelId = "global"

	defaultHistoryLimit      = 100
	defaultFreeImageLimit    = 1 << 20  // 1 MiB
	defaultPremiumImageLimit = 10 << 20 // 10 MiB
	defaultPremiumPrice      = 500
	defaultMaxUsernameLength = 15
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string

	// BootstrapAdmin is granted administrator and premium at
	// registration time. Empty disables the grant entirely.
	BootstrapAdmin string

	GlobalChannelName string
	GlobalChannelDesc string

	HistoryLimit      int
	MaxUsernameLength int
	FreeImageLimit    int
	PremiumImageLimit int
	PremiumPrice      int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, bootstrapAdmin string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:        serverAddr,
		DatabaseDSN:       databaseDSN,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		BootstrapAdmin:    bootstrapAdmin,
		GlobalChannelName: "Global Chat",
		GlobalChannelDesc: "main server",
		HistoryLimit:      defaultHistoryLimit,
		MaxUsernameLength: defaultMaxUsernameLength,
		FreeImageLimit:    defaultFreeImageLimit,
		PremiumImageLimit: defaultPremiumImageLimit,
		PremiumPrice:      defaultPremiumPrice,
	}, nil
}
