//go:build integration

package http_test

import (
	"context"
	"testing"
	"time"

	"github.com/riakpersist/riakpersist"
	riakhttp "github.com/riakpersist/riakpersist/http"
	"github.com/riakpersist/riakpersist/mapreduce"
	platformtesting "github.com/riakpersist/riakpersist/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func initNode(t *testing.T) *riakhttp.Client {
	t.Helper()
	ctx := context.Background()

	node, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "basho/riak-kv:latest",
			ExposedPorts: []string{"8098/tcp"},
			WaitingFor:   wait.ForHTTP("/ping").WithPort("8098/tcp").WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start riak testcontainer: %v", err)
	}
	t.Cleanup(func() {
		_ = node.Terminate(ctx)
	})

	host, err := node.Host(ctx)
	require.NoError(t, err)
	port, err := node.MappedPort(ctx, "8098/tcp")
	require.NoError(t, err)

	config := riakhttp.NewConfig()
	config.Host = host
	config.Port = port.Int()
	c, err := riakhttp.NewClient(zaptest.NewLogger(t), config)
	require.NoError(t, err)
	return c
}

func TestClient_Node(t *testing.T) {
	c := initNode(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	obj := riakpersist.NewStoredObject("it-users", "u1", 2)
	obj.Set("name", "ann")
	obj.AddIndex("email_bin", "ann@example.com")
	platformtesting.MustPut(t, c, obj)

	res, err := c.Fetch(ctx, "it-users", "u1")
	require.NoError(t, err)
	got, err := riakpersist.DecodeStoredObject("it-users", "u1", res)
	require.NoError(t, err)
	assert.Equal(t, riakpersist.Indexes{{Name: "email_bin", Value: "ann@example.com"}}, got.Indexes)
	name, _ := got.Get("name")
	assert.Equal(t, "ann", name)

	keys, err := c.ListKeys(ctx, "it-users")
	require.NoError(t, err)
	assert.Contains(t, keys, "u1")

	job, err := mapreduce.New().
		AddBucket("it-users").
		Map(mapreduce.JavaScriptNamed("Riak.mapValuesJson"), true, nil).
		Job()
	require.NoError(t, err)
	rows, err := c.MapReduce(ctx, job)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, c.Delete(ctx, "it-users", "u1"))
	res, err = c.Fetch(ctx, "it-users", "u1")
	require.NoError(t, err)
	assert.Nil(t, res)
}
