package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/errors"
)

func TestExpand(t *testing.T) {
	t.Setenv("BIO_TEST_TOKEN", "hf_abc")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "literal", want: "literal"},
		{in: "${BIO_TEST_TOKEN}", want: "hf_abc"},
		{in: "Bearer ${BIO_TEST_TOKEN}!", want: "Bearer hf_abc!"},
		{in: "${BIO_TEST_UNSET:-fallback}", want: "fallback"},
		{in: "${BIO_TEST_UNSET:-}", want: ""},
		{in: "${BIO_TEST_UNSET}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Expand(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				assert.Contains(t, err.Error(), "BIO_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	good := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(good, []byte(" pass word \n"), 0o600))
	got, err := ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, " pass word ", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	require.Error(t, err)

	_, err = ReadFile(dir)
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	t.Setenv("BIO_TEST_PASSWORD", "from-env")
	file := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(file, []byte("from-file"), 0o600))

	got, err := Resolve(file, "${BIO_TEST_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${BIO_TEST_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
