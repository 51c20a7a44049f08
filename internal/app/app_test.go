package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/platform/config"
)

func TestPlatforms(t *testing.T) {
	got := platforms([]string{"spotify", "tiktok"})
	assert.Equal(t, []domain.Platform{domain.PlatformSpotify, domain.PlatformTikTok}, got)
	assert.Empty(t, platforms(nil))
}

func TestNew_NilLogger(t *testing.T) {
	a := New(&config.Config{}, nil, nil)
	require.NotNil(t, a.logger)
}

func TestRunReport_InvalidQuery(t *testing.T) {
	a := New(&config.Config{}, nil, nil)

	var out bytes.Buffer

	err := a.RunReport(context.Background(), "  ", "", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrInvalidInput))

	err = a.RunReport(context.Background(), "karol-g", "someday", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrInvalidWeek))
	assert.Empty(t, out.String())
}

func TestRunSync_RequiresWatchEntities(t *testing.T) {
	a := New(&config.Config{SyncPlatforms: "spotify"}, nil, nil)

	err := a.RunSync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrInvalidInput))
}
