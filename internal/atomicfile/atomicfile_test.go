package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Version string   `json:"version"`
	Items   []string `json:"items"`
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.json")
	require.NoError(t, WriteJSON(path, doc{Version: "1.0", Items: []string{"a"}}))

	var got doc
	ok, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.0", got.Version)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWrite_ValidationFailureKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ok":true}`), 0o644))

	err := Write(path, []byte("garbage"), func([]byte) error { return errors.New("not json") })
	require.Error(t, err)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "validate", ioErr.Op)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `{"ok":true}`, string(data))

	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadJSON_Missing(t *testing.T) {
	var d doc
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "none.json"), &d)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadJSON_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	var d doc
	_, err := ReadJSON(path, &d)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "decode", ioErr.Op)
}

func TestWriteJSON_Unmarshalable(t *testing.T) {
	err := WriteJSON(filepath.Join(t.TempDir(), "x.json"), map[string]any{"c": make(chan int)})
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "marshal", ioErr.Op)
}
