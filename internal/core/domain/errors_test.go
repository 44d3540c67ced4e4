package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaunchError_MessageNamesStage(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"Configuration", ConfigurationErrorf("validate", "version is required"), ErrConfiguration, "configuration failed: validate: version is required"},
		{"Resolution", ResolutionError("list builds", cause), ErrResolution, "resolution failed: list builds: connection refused"},
		{"Download", DownloadError("", cause), ErrDownload, "download failed: connection refused"},
		{"Filesystem", FilesystemError("copy plugin", cause), ErrFilesystem, "filesystem failed: copy plugin: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestLaunchError_KindSurvivesWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("launch: %w", FilesystemError("create run directory", cause))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindFilesystem, kind)
	assert.ErrorIs(t, err, ErrFilesystem)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrDownload)

	_, ok = KindOf(cause)
	assert.False(t, ok)
}
