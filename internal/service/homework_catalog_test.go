package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-homework-api/internal/repository"
)

func TestHomeworkCatalogCachesHomeworkInRedis(t *testing.T) {
	fixture := newEngineFixture(t)
	homework := fixture.seedHomework(t, "H1")

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := NewHomeworkCatalog(repository.NewHomeworkRepository(fixture.db), client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	loaded, err := catalog.GetHomework(ctx, homework.ID)
	require.NoError(t, err)
	require.Equal(t, "H1", loaded.Title)
	require.True(t, server.Exists(catalogCacheKey(homework.ID)))

	require.NoError(t, fixture.db.Exec("UPDATE homeworks SET title = ? WHERE id = ?", "renamed", homework.ID).Error)

	cached, err := catalog.GetHomework(ctx, homework.ID)
	require.NoError(t, err)
	require.Equal(t, "H1", cached.Title)
	require.Len(t, cached.RequirementList(), 2)

	server.FastForward(2 * time.Minute)

	refreshed, err := catalog.GetHomework(ctx, homework.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", refreshed.Title)

	_, err = catalog.GetHomework(ctx, 999)
	require.ErrorIs(t, err, ErrHomeworkNotFound)
}

func TestHomeworkCatalogListsModulesWithHomeworks(t *testing.T) {
	fixture := newEngineFixture(t)
	fixture.seedHomework(t, "H1")
	fixture.seedHomework(t, "H2")

	catalog := NewHomeworkCatalog(repository.NewHomeworkRepository(fixture.db), nil, 0, zerolog.Nop())
	modules, err := catalog.ListModules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)
	require.Len(t, modules[0].Homeworks, 1)
	require.Equal(t, modules[0].Title, modules[0].Homeworks[0].ModuleTitle)
	require.Len(t, modules[0].Homeworks[0].Requirements, 2)
	require.Equal(t, []string{"film", "edit", "publish"}, modules[0].Homeworks[0].Instructions[0].Steps)
}
