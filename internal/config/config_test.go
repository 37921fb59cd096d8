package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := NewConfig("localhost:8000", "dsn", "c2VjcmV0", []string{"http://localhost:3000"}, "root")
		assert.NoError(t, err)
		assert.Equal(t, "localhost:8000", cfg.ServerAddr)
		assert.Equal(t, []byte("secret"), cfg.SigningKey)
		assert.Equal(t, "root", cfg.BootstrapAdmin)
		assert.Equal(t, defaultHistoryLimit, cfg.HistoryLimit)
		assert.Positive(t, cfg.HistoryLimit)
		assert.Equal(t, defaultPremiumPrice, cfg.PremiumPrice)
		assert.Greater(t, cfg.PremiumImageLimit, cfg.FreeImageLimit)
		assert.NotEmpty(t, cfg.GlobalChannelName)
		assert.NotEmpty(t, cfg.GlobalChannelDesc)
	})

	t.Run("empty server address", func(t *testing.T) {
		_, err := NewConfig("", "dsn", "c2VjcmV0", nil, "")
		assert.Error(t, err)
	})

	t.Run("empty dsn", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "", "c2VjcmV0", nil, "")
		assert.Error(t, err)
	})

	t.Run("invalid signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "dsn", "not base64!!!", nil, "")
		assert.Error(t, err)
	})
}
