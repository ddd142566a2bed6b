package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/adapters/memory"
	"github.com/parlorchat/parlor/internal/data"
	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/service"
)

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Contains(t, out, "Usage: parlor-admin")
	for name := range commands() {
		require.Contains(t, out, name)
	}
	// Sorted output keeps delete-account ahead of show-profile.
	assert.Less(t, strings.Index(out, "delete-account"), strings.Index(out, "show-profile"))
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"--timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestProvisionAndShowProfile(t *testing.T) {
	ctx := context.Background()
	dir := service.NewProfileDirectory(memory.NewDocumentStore())

	var buf bytes.Buffer
	require.NoError(t, provisionProfile(ctx, &buf, dir, domainauth.Profile{
		UserID: " u-1 ", Username: " alice ", ProfileURL: "ref123",
	}))

	buf.Reset()
	require.NoError(t, showProfile(ctx, &buf, dir, "u-1"))
	var got domainauth.Profile
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, domainauth.Profile{UserID: "u-1", Username: "alice", ProfileURL: "ref123"}, got)

	err := showProfile(ctx, &buf, dir, "missing")
	require.ErrorIs(t, err, errProfileNotFound)

	require.Error(t, provisionProfile(ctx, &buf, dir, domainauth.Profile{UserID: "u-2", Username: " "}))
	require.ErrorIs(t, provisionProfile(ctx, &buf, dir, domainauth.Profile{Username: "bob"}), service.ErrUserIDRequired)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("purges account and external profile", func(t *testing.T) {
		dir := service.NewProfileDirectory(memory.NewDocumentStore())
		require.NoError(t, dir.Put(ctx, domainauth.Profile{UserID: "u-1", Username: "alice"}))

		var purged string
		purge := func(_ context.Context, id string) (data.PurgeResult, error) {
			purged = id
			return data.PurgeResult{AccountDeleted: true}, nil
		}

		res, err := deleteAccount(ctx, purge, dir, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", purged)
		assert.True(t, res.AccountDeleted)
		assert.True(t, res.ProfileDeleted)

		_, found, err := dir.Get(ctx, "u-1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("profile in same database", func(t *testing.T) {
		purge := func(context.Context, string) (data.PurgeResult, error) {
			return data.PurgeResult{AccountDeleted: true, ProfileDeleted: true}, nil
		}
		res, err := deleteAccount(ctx, purge, nil, "u-1")
		require.NoError(t, err)
		assert.Equal(t, data.PurgeResult{AccountDeleted: true, ProfileDeleted: true}, res)
	})

	t.Run("purge failure", func(t *testing.T) {
		boom := errors.New("boom")
		purge := func(context.Context, string) (data.PurgeResult, error) {
			return data.PurgeResult{}, boom
		}
		_, err := deleteAccount(ctx, purge, nil, "u-1")
		require.ErrorIs(t, err, boom)
	})
}

func TestParseDeleteAccountFlags(t *testing.T) {
	opts, err := parseDeleteAccountFlags([]string{"--yes", "u-1"})
	require.NoError(t, err)
	assert.Equal(t, deleteAccountOptions{UserID: "u-1", Yes: true}, opts)

	_, err = parseDeleteAccountFlags(nil)
	require.Error(t, err)
	_, err = parseDeleteAccountFlags([]string{"a", "b"})
	require.Error(t, err)
}

func TestConfirmDelete(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, confirmDelete(&out, strings.NewReader(""), deleteAccountOptions{UserID: "u", Yes: true}))
	assert.Empty(t, out.String())

	require.NoError(t, confirmDelete(&out, strings.NewReader("yes\n"), deleteAccountOptions{UserID: "u"}))
	assert.Contains(t, out.String(), "Continue? [y/N]")

	require.Error(t, confirmDelete(&out, strings.NewReader("n\n"), deleteAccountOptions{UserID: "u"}))
	require.Error(t, confirmDelete(&out, strings.NewReader(""), deleteAccountOptions{UserID: "u"}))
}
