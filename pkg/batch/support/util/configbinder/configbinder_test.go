package configbinder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolSettings struct {
	MaxOpenConns int `yaml:"max_open_conns"`
}

type connectionSettings struct {
	Type    string            `yaml:"type"`
	Port    int               `yaml:"port"`
	Enabled bool              `yaml:"enabled"`
	Params  map[string]string `yaml:"params"`
	Pool    poolSettings      `yaml:"pool"`
}

func TestBindProperties_WeaklyTyped(t *testing.T) {
	var target connectionSettings
	err := BindProperties(map[string]interface{}{
		"type":    "mysql",
		"port":    "3306",
		"enabled": "true",
		"params":  map[string]interface{}{"charset": "utf8mb4"},
		"pool":    map[string]interface{}{"max_open_conns": 4},
	}, &target)

	require.NoError(t, err)
	assert.Equal(t, "mysql", target.Type)
	assert.Equal(t, 3306, target.Port)
	assert.True(t, target.Enabled)
	assert.Equal(t, "utf8mb4", target.Params["charset"])
	assert.Equal(t, 4, target.Pool.MaxOpenConns)
}

func TestBindProperties_Failure(t *testing.T) {
	var target connectionSettings
	err := BindProperties(map[string]interface{}{"port": "not-a-number"}, &target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectionSettings")
}
