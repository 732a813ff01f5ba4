// Command catalogdump prints the schema catalog of a data directory: its
// databases, areas, privileges and area contents, and the records of the
// logical log.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"schemacore/pkg/debug/ui"
	"schemacore/pkg/logging"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema"
)

type Globals struct {
	LogLevel  string `help:"Log level." enum:"DEBUG,INFO,WARN,ERROR" default:"WARN"`
	LogFormat string `help:"Log format." enum:"text,json" default:"text"`
	LogFile   string `help:"Write logs to this file instead of stderr." type:"path"`
}

// catalogArgs are shared by the commands that read a catalog directory.
type catalogArgs struct {
	Dir      string `arg:"" help:"Catalog directory." type:"existingdir"`
	Database uint32 `short:"d" help:"Only show the database with this ID."`
}

func (a catalogArgs) filter() primitives.ObjectID {
	if a.Database == 0 {
		return primitives.InvalidObjectID
	}
	return primitives.ObjectID(a.Database)
}

var CLI struct {
	Globals

	Databases  DatabasesCmd  `cmd:"" help:"List the databases."`
	Areas      AreasCmd      `cmd:"" help:"List the areas of each database."`
	Privileges PrivilegesCmd `cmd:"" help:"List the privileges of each database."`
	Contents   ContentsCmd   `cmd:"" help:"List the objects stored in each area."`
	Log        LogCmd        `cmd:"" help:"Print the records of a logical log file."`
	Browse     BrowseCmd     `cmd:"" help:"Browse the catalog interactively."`
}

type DatabasesCmd struct {
	Dir string `arg:"" help:"Catalog directory." type:"existingdir"`
}

func (c *DatabasesCmd) Run(g *Globals) error {
	return withCatalog(c.Dir, func(m *schema.Manager) error {
		v, err := databaseView(m)
		if err != nil {
			return err
		}
		return printView(os.Stdout, v)
	})
}

type AreasCmd struct {
	catalogArgs
}

func (c *AreasCmd) Run(g *Globals) error {
	return withCatalog(c.Dir, func(m *schema.Manager) error {
		v, err := areaView(m, c.filter())
		if err != nil {
			return err
		}
		return printView(os.Stdout, v)
	})
}

type PrivilegesCmd struct {
	catalogArgs
}

func (c *PrivilegesCmd) Run(g *Globals) error {
	return withCatalog(c.Dir, func(m *schema.Manager) error {
		v, err := privilegeView(m, c.filter())
		if err != nil {
			return err
		}
		return printView(os.Stdout, v)
	})
}

type ContentsCmd struct {
	catalogArgs
}

func (c *ContentsCmd) Run(g *Globals) error {
	return withCatalog(c.Dir, func(m *schema.Manager) error {
		v, err := contentView(m, c.filter())
		if err != nil {
			return err
		}
		return printView(os.Stdout, v)
	})
}

type LogCmd struct {
	File string `arg:"" help:"Logical log file." type:"existingfile"`
}

func (c *LogCmd) Run(g *Globals) error {
	records, err := schema.ReadLogFile(c.File)
	if err != nil {
		return err
	}
	return printView(os.Stdout, logView(records))
}

type BrowseCmd struct {
	catalogArgs
}

func (c *BrowseCmd) Run(g *Globals) error {
	return withCatalog(c.Dir, func(m *schema.Manager) error {
		_, err := tea.NewProgram(newBrowser(m, c.filter()), tea.WithAltScreen()).Run()
		return err
	})
}

func withCatalog(dir string, fn func(*schema.Manager) error) (err error) {
	m, err := schema.NewManager(schema.DefaultConfig(dir))
	if err != nil {
		return fmt.Errorf("open catalog %s: %w", dir, err)
	}
	defer func() {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(m)
}

func printView(w io.Writer, v view) error {
	if _, err := fmt.Fprintln(w, ui.RenderTitle("▣", v.title)); err != nil {
		return err
	}
	if len(v.rows) == 0 {
		_, err := fmt.Fprintln(w, ui.HelpStyle.Render("(empty)"))
		return err
	}
	_, err := fmt.Fprintln(w, ui.RenderTable(v.headers, v.rows, -1))
	return err
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("catalogdump"),
		kong.Description("Inspect a schema catalog directory."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if err := logging.Init(logging.Config{
		Level:      logging.LogLevel(CLI.LogLevel),
		OutputPath: CLI.LogFile,
		Format:     CLI.LogFormat,
	}); err != nil {
		ctx.FatalIfErrorf(err)
	}
	defer logging.Close()

	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
