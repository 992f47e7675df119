package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	t.Run("falls back to branch without a tag", func(t *testing.T) {
		assert.Equal(t, GitBranch, Version())
	})

	t.Run("prefers the release tag", func(t *testing.T) {
		GitVersion = "v1.2.3"
		defer func() { GitVersion = "" }()
		assert.Equal(t, "v1.2.3", Version())
	})
}

func TestBuildInfo(t *testing.T) {
	info := BuildInfo()
	assert.Contains(t, info, "Version: ")
	assert.Contains(t, info, "Commit: unknown")
	assert.Contains(t, info, "OS/Arch: ")
}
