package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/service"
)

var errProfileNotFound = errors.New("profile not found")

func runShowProfile(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show-profile <user-id>")
	}
	return withProfiles(cmdCtx, func(ctx context.Context, dir *service.ProfileDirectory) error {
		return showProfile(ctx, cmdCtx.Out, dir, args[0])
	})
}

func runProvisionProfile(cmdCtx *commandContext, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: provision-profile <user-id> <username> [profile-url]")
	}
	p := domainauth.Profile{UserID: args[0], Username: args[1]}
	if len(args) == 3 {
		p.ProfileURL = args[2]
	}
	return withProfiles(cmdCtx, func(ctx context.Context, dir *service.ProfileDirectory) error {
		if err := provisionProfile(ctx, cmdCtx.Out, dir, p); err != nil {
			return err
		}
		cmdCtx.Logger.InfoContext(ctx, "profile provisioned", "user_id", p.UserID)
		return nil
	})
}

func withProfiles(cmdCtx *commandContext, fn func(context.Context, *service.ProfileDirectory) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	deps, err := connectInfra(ctx, &connectInfraOptions{Logger: cmdCtx.Logger, Config: &cmdCtx.Config})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", cerr)
		}
	}()

	return fn(ctx, service.NewProfileDirectory(deps.Documents))
}

func showProfile(ctx context.Context, out io.Writer, dir *service.ProfileDirectory, userID string) error {
	p, found, err := dir.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", errProfileNotFound, userID)
	}
	return printProfile(out, p)
}

func provisionProfile(ctx context.Context, out io.Writer, dir *service.ProfileDirectory, p domainauth.Profile) error {
	p.UserID = strings.TrimSpace(p.UserID)
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return errors.New("username is required")
	}
	if err := dir.Put(ctx, p); err != nil {
		return err
	}
	return printProfile(out, p)
}

func printProfile(out io.Writer, p domainauth.Profile) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
