package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/data"
	"github.com/parlorchat/parlor/internal/service"
)

type deleteAccountOptions struct {
	UserID string
	Yes    bool
}

// purgeFunc removes the account row, and the profile when it lives in the same database.
type purgeFunc func(ctx context.Context, userID string) (data.PurgeResult, error)

func runDeleteAccount(cmdCtx *commandContext, args []string) error {
	opts, err := parseDeleteAccountFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Auth.Backend != config.AuthBackendPostgres {
		return fmt.Errorf("delete-account requires AUTH_BACKEND=postgres (got %q)", cmdCtx.Config.Auth.Backend)
	}
	if confirmErr := confirmDelete(cmdCtx.Out, cmdCtx.In, opts); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	deps, err := connectInfra(ctx, &connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", cerr)
		}
	}()

	purge := func(ctx context.Context, userID string) (data.PurgeResult, error) {
		return data.PurgeUser(ctx, deps.Infra.DB, userID)
	}
	// Profiles outside PostgreSQL are removed separately.
	var profiles *service.ProfileDirectory
	if cmdCtx.Config.Documents.Store != config.DocumentStorePostgres {
		profiles = service.NewProfileDirectory(deps.Documents)
	}

	res, err := deleteAccount(ctx, purge, profiles, opts.UserID)
	if err != nil {
		return err
	}
	cmdCtx.Logger.InfoContext(ctx, "delete account complete",
		"user_id", opts.UserID,
		"account_deleted", res.AccountDeleted,
		"profile_deleted", res.ProfileDeleted,
	)
	return writef(cmdCtx.Out, "account deleted: %t, profile deleted: %t\n", res.AccountDeleted, res.ProfileDeleted)
}

func deleteAccount(
	ctx context.Context,
	purge purgeFunc,
	profiles *service.ProfileDirectory,
	userID string,
) (data.PurgeResult, error) {
	res, err := purge(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("purge user %s: %w", userID, err)
	}
	if profiles != nil {
		_, found, getErr := profiles.Get(ctx, userID)
		if getErr != nil {
			return res, getErr
		}
		if found {
			if delErr := profiles.Delete(ctx, userID); delErr != nil {
				return res, delErr
			}
			res.ProfileDeleted = true
		}
	}
	return res, nil
}

func parseDeleteAccountFlags(args []string) (deleteAccountOptions, error) {
	fs := flag.NewFlagSet("delete-account", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts deleteAccountOptions
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return deleteAccountOptions{}, err
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return deleteAccountOptions{}, errors.New("usage: delete-account [--yes] <user-id>")
	}
	opts.UserID = strings.TrimSpace(fs.Arg(0))
	return opts, nil
}

func confirmDelete(out io.Writer, in io.Reader, opts deleteAccountOptions) error {
	if opts.Yes {
		return nil
	}
	if err := writef(out, "This permanently deletes account %s and its profile.\nContinue? [y/N]: ", opts.UserID); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
