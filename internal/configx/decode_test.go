package configx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Addr  string `json:"addr" yaml:"addr"`
	Count int    `json:"count" yaml:"count"`
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDecodeFile_JSON(t *testing.T) {
	var s sample
	require.NoError(t, DecodeFile(write(t, "c.json", `{"addr":"a:1","count":3}`), &s))
	assert.Equal(t, sample{Addr: "a:1", Count: 3}, s)
}

func TestDecodeFile_YAML(t *testing.T) {
	for _, name := range []string{"c.yaml", "c.YML"} {
		var s sample
		require.NoError(t, DecodeFile(write(t, name, "addr: b:2\ncount: 7\n"), &s))
		assert.Equal(t, sample{Addr: "b:2", Count: 7}, s)
	}
}

func TestDecodeFile_Errors(t *testing.T) {
	var s sample
	err := DecodeFile(filepath.Join(t.TempDir(), "missing.json"), &s)
	require.ErrorContains(t, err, "read config")

	err = DecodeFile(write(t, "bad.json", `{ not json`), &s)
	require.ErrorContains(t, err, "parse config")
}
