package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edumarques81/stellar-coverfetch/internal/version"
)

func TestGetInfo(t *testing.T) {
	info := version.GetInfo()

	assert.NotEmpty(t, version.Version)
	assert.Equal(t, "Coverfetch", version.Name)
	assert.Equal(t, version.Name, info.Name)
	assert.Equal(t, version.Version, info.Version)
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		info version.Info
		want string
	}{
		{"release", version.Info{Name: "Coverfetch", Version: "1.0.0"}, "Coverfetch v1.0.0"},
		{"commit is shortened", version.Info{Name: "Coverfetch", Version: "1.0.0", GitCommit: "0123456789abcdef"}, "Coverfetch v1.0.0 (0123456)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestUserAgent(t *testing.T) {
	info := version.Info{Name: "Coverfetch", Version: "1.2.3"}
	assert.Regexp(t, `^Coverfetch/1\.2\.3 \(.+\)$`, info.UserAgent())
}
