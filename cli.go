package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"SetScript/internal/bookmarks"
)

func newCLI() *cli.App {
	return &cli.App{
		Name:    "setscript",
		Usage:   "Save pages and open them from a desktop shell",
		Version: Version,
		Description: `Without a command the desktop window starts. The commands below work on
the same data directory and can run while the window is open; it picks up
their changes.

Examples:
  setscript list --json
  setscript add --name Docs --url https://go.dev/doc --icon docs.png
  setscript edit --desc "Go documentation" <id>
  setscript import export.json
  setscript --open https://go.dev`,
		HideVersion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "directory holding bookmarks.json and settings.json",
				EnvVars: []string{"SETSCRIPT_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:  "open",
				Usage: "URL to hand to the window (forwarded when already running)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return cli.ShowAppHelp(c)
			}
			svc, err := openServices(c.String("data-dir"), false)
			if err != nil {
				return err
			}
			defer svc.Close()
			return runShell(svc, c.String("open"))
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Print saved pages, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print the records as JSON"},
				},
				Action: withServices(listCommand),
			},
			{
				Name:  "add",
				Usage: "Save a page",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "url", Required: true},
					&cli.StringFlag{Name: "desc", Usage: "description"},
					&cli.PathFlag{Name: "icon", Usage: "image file used as the icon"},
				},
				Action: withServices(addCommand),
			},
			{
				Name:      "edit",
				Usage:     "Change the name or description of a saved page",
				ArgsUsage: "[--name N] [--desc D] <id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "desc", Usage: "description"},
				},
				Action: withServices(editCommand),
			},
			{
				Name:      "rm",
				Aliases:   []string{"delete"},
				Usage:     "Delete a saved page",
				ArgsUsage: "<id>",
				Action:    withServices(removeCommand),
			},
			{
				Name:      "import",
				Usage:     "Import bookmarks from a JSON export",
				ArgsUsage: "<file>",
				Action:    withServices(importCommand),
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, Version)
					return nil
				},
			},
		},
	}
}

func withServices(fn func(*cli.Context, *services) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := openServices(c.String("data-dir"), true)
		if err != nil {
			return err
		}
		defer svc.Close()
		return fn(c, svc)
	}
}

func listCommand(c *cli.Context, svc *services) error {
	list, err := svc.bookmarks.List(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(c.App.Writer, "no saved pages")
		return nil
	}
	for _, rec := range list {
		fmt.Fprintf(c.App.Writer, "%s  %s  %s\n", rec.ID, rec.Name, rec.URL)
		if rec.Description != "" {
			fmt.Fprintf(c.App.Writer, "    %s\n", rec.Description)
		}
	}
	return nil
}

func addCommand(c *cli.Context, svc *services) error {
	in := bookmarks.CreateInput{
		Name:        c.String("name"),
		URL:         c.String("url"),
		Description: c.String("desc"),
	}
	if p := c.Path("icon"); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read icon: %w", err)
		}
		in.IconPayload = base64.StdEncoding.EncodeToString(data)
	}
	rec, err := svc.bookmarks.Create(c.Context, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, rec.ID)
	return nil
}

func editCommand(c *cli.Context, svc *services) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	var in bookmarks.UpdateInput
	if c.IsSet("name") {
		v := c.String("name")
		in.Name = &v
	}
	if c.IsSet("desc") {
		v := c.String("desc")
		in.Description = &v
	}
	if in.Name == nil && in.Description == nil {
		return fmt.Errorf("%w: nothing to change, pass --name or --desc", bookmarks.ErrInvalidInput)
	}
	rec, err := svc.bookmarks.Update(c.Context, id, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s  %s  %s\n", rec.ID, rec.Name, rec.URL)
	return nil
}

func removeCommand(c *cli.Context, svc *services) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	return svc.bookmarks.Delete(c.Context, id)
}

func importCommand(c *cli.Context, svc *services) error {
	path, err := requireArg(c, "file")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	recs, err := parseExport(data, c.App.ErrWriter)
	if err != nil {
		return err
	}
	res, err := svc.bookmarks.Import(c.Context, recs)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "imported %d, skipped %d\n", res.Added, res.Skipped)
	return nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	v := strings.TrimSpace(c.Args().First())
	if v == "" {
		return "", fmt.Errorf("%w: missing <%s>", bookmarks.ErrInvalidInput, name)
	}
	return v, nil
}
