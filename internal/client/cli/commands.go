package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrijs2005/gophbucket/internal/common"
)

func (a *App) Status(ctx context.Context) error {
	if err := a.api.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		printlnFn("Server unavailable:", err)
		return err
	}
	a.setMode(ModeOnline)
	printlnFn("Server is running")
	return nil
}

// Login stores the token once the server accepts it. A token whose owner has
// no identity yet is still valid.
func (a *App) Login(ctx context.Context) error {
	token, err := GetToken(a.out)
	if err != nil {
		return err
	}
	if token == "" {
		printlnFn("Token must not be empty")
		return common.ErrorUnauthorized
	}

	if _, err := a.api.Details(ctx, token); err != nil && !errors.Is(err, common.ErrorNotFound) {
		printlnFn("Login failed:", err)
		return err
	}
	a.token = token
	printlnFn("Logged in")
	return nil
}

func (a *App) Provision(ctx context.Context, args []string) error {
	var publicID string
	if len(args) > 0 {
		publicID = args[0]
	}
	if err := a.api.Provision(ctx, a.token, publicID); err != nil {
		printlnFn("Provisioning failed:", err)
		return err
	}
	printlnFn("Identity provisioned")
	return a.Show(ctx)
}

func (a *App) Show(ctx context.Context) error {
	id, err := a.api.Details(ctx, a.token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			printlnFn("No identity provisioned yet")
		} else {
			printlnFn("Lookup failed:", err)
		}
		return err
	}
	printlnFn(fmt.Sprintf("public id:  %s", id.PublicID))
	printlnFn(fmt.Sprintf("user:       %s (%s)", id.UserName, id.UserID))
	printlnFn(fmt.Sprintf("arn:        %s", id.Arn))
	printlnFn(fmt.Sprintf("bucket:     %s", id.Bucket))
	printlnFn(fmt.Sprintf("policy:     %s", id.PolicyName))
	printlnFn(fmt.Sprintf("created at: %s", id.CreatedAt.Format("2006-01-02 15:04:05")))
	return nil
}

// URLs requests upload authorizations for args, or for names read from the
// prompt when no args are given.
func (a *App) URLs(ctx context.Context, args []string) error {
	names := args
	if len(names) == 0 {
		var err error
		if names, err = GetObjectNames(a.reader, a.out); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		printlnFn("No object names given")
		return nil
	}

	urls, err := a.api.UploadURLs(ctx, a.token, names)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			printlnFn("No identity provisioned yet")
		} else {
			printlnFn("Request failed:", err)
		}
		return err
	}
	for _, u := range urls {
		printlnFn(fmt.Sprintf("%s -> %s", u.ObjectID, u.URL))
		for _, k := range slices.Sorted(maps.Keys(u.Fields)) {
			printlnFn(fmt.Sprintf("    %s=%s", k, u.Fields[k]))
		}
	}
	if len(urls) < len(names) {
		printlnFn(fmt.Sprintf("%d of %d objects could not be authorized", len(names)-len(urls), len(names)))
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.token = ""
	printlnFn("Logged out")
	return nil
}
