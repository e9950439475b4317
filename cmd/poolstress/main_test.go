package main

import (
	"context"
	"testing"
	"time"

	"github.com/pgvanniekerk/ezpool/pkg/threadpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRun_DrainsWorkload(t *testing.T) {
	err := run(zerolog.Nop(), config{
		workers:  4,
		feeds:    3,
		articles: 10,
		work:     0,
	})
	require.NoError(t, err)
}

func TestWaitAll_Interrupted(t *testing.T) {
	pool := threadpool.New(1)
	defer pool.Close()

	release := make(chan struct{})
	pool.Schedule(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, waitAll(ctx, pool), context.DeadlineExceeded)
}

func TestStopAll_StopsInOrder(t *testing.T) {
	first, second := threadpool.New(1), threadpool.New(1)

	var order []string
	first.Schedule(func() { time.Sleep(5 * time.Millisecond); order = append(order, "first") })
	require.NoError(t, stopAll(zerolog.Nop(), first, second))

	require.Equal(t, []string{"first"}, order)
	require.Equal(t, threadpool.StateStopped, first.State())
	require.Equal(t, threadpool.StateStopped, second.State())
}

func TestProcessArticle_Deterministic(t *testing.T) {
	require.Equal(t, processArticle(1, 2, 0), processArticle(1, 2, 0))
	require.NotEqual(t, processArticle(1, 2, 0), processArticle(2, 1, 0))
}
