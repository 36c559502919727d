package config_test

import (
	"testing"
	"time"

	"pharmacy/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "test_jwt_secret")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "BHD", cfg.Currency)
	assert.Equal(t, "1", cfg.DeliveryFee.String())
	assert.Equal(t, "1", cfg.UrgentFee.String())
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.NotifyMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.NotifyRetryBase)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "s")
	v.Set("DB_DRIVER", "SQLite")
	v.Set("DELIVERY_FEE", "1.500")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "1.5", cfg.DeliveryFee.String())
}

func TestFromViper_Invalid(t *testing.T) {
	_, err := config.FromViper(viper.New())
	assert.ErrorContains(t, err, "JWT_SECRET")

	v := viper.New()
	v.Set("JWT_SECRET", "s")
	v.Set("DB_DRIVER", "mysql")
	_, err = config.FromViper(v)
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")

	v = viper.New()
	v.Set("JWT_SECRET", "s")
	v.Set("URGENT_FEE", "abc")
	_, err = config.FromViper(v)
	assert.ErrorContains(t, err, "URGENT_FEE")
}
