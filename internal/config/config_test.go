// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	o := Default("demo")
	require.Equal(t, "demo", o.Name)
	require.Equal(t, int64(DefaultMaxFileSize), o.MaxFileSize)
	require.Equal(t, DefaultMaxReaderCount, o.MaxReaderCount)
	require.Equal(t, DefaultMinMessageAge, o.MinMessageAge)
	require.Equal(t, DefaultWaitTimeout, o.WaitTimeout)
	require.NoError(t, o.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{
			name: "empty name",
			opts: Options{MaxFileSize: 1024, MaxReaderCount: 2},
			want: ErrInvalidName,
		},
		{
			name: "negative capacity",
			opts: Options{Name: "x", MaxFileSize: -1, MaxReaderCount: 2},
			want: ErrInvalidCapacity,
		},
		{
			name: "negative readers",
			opts: Options{Name: "x", MaxFileSize: 1024, MaxReaderCount: -3},
			want: ErrInvalidReaderCount,
		},
		{
			name: "valid",
			opts: Options{Name: "x", MaxFileSize: 1, MaxReaderCount: 1},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFileConfigOptions(t *testing.T) {
	fc := FileConfig{
		Name:           "demo",
		MaxFileSize:    2048,
		MinMessageAge:  "250ms",
		WaitTimeout:    "1s",
		MaxReaderCount: 3,
	}

	opts, err := fc.Options()
	require.NoError(t, err)
	require.Equal(t, int64(2048), opts.MaxFileSize)
	require.Equal(t, 3, opts.MaxReaderCount)
	require.Equal(t, 250*time.Millisecond, opts.MinMessageAge)
	require.Equal(t, time.Second, opts.WaitTimeout)
}

func TestFileConfigOptionsBadDuration(t *testing.T) {
	fc := FileConfig{Name: "demo", MinMessageAge: "soon"}
	_, err := fc.Options()
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: loaded
maxFileSize: 4096
minMessageAge: 100ms
`), 0o600))

	fc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "loaded", fc.Name)
	require.Equal(t, int64(4096), fc.MaxFileSize)

	opts, err := fc.Options()
	require.NoError(t, err)
	require.Equal(t, 100*time.Millisecond, opts.MinMessageAge)
	require.Equal(t, DefaultWaitTimeout, opts.WaitTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
