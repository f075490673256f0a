package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/joseph-ayodele/invoice-extractor/internal/classifier"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
	"github.com/joseph-ayodele/invoice-extractor/internal/patterns"
)

func main() {
	rootFlags := ff.NewFlagSet("modelctl")
	var (
		configPath = rootFlags.StringLong("config", "", "YAML config file overlaying the environment")
		storePath  = rootFlags.StringLong("store", "", "model store file (defaults to classifier.store_path)")
	)

	// open resolves the store and the feature schema artifacts are bound to.
	open := func() (*classifier.BoltStore, features.Schema, error) {
		cfg, err := common.LoadConfigFile(*configPath)
		if err != nil {
			return nil, features.Schema{}, err
		}
		path := cfg.Classifier.StorePath
		if *storePath != "" {
			path = *storePath
		}
		reg, err := patterns.LoadFile(cfg.Patterns.File, nil)
		if err != nil {
			return nil, features.Schema{}, err
		}
		fx := features.New(reg, features.Config{ContextWindow: cfg.Pipeline.ContextWindow}, nil)
		store, err := classifier.OpenBoltStore(path)
		if err != nil {
			return nil, features.Schema{}, err
		}
		return store, fx.Schema(), nil
	}

	importFlags := ff.NewFlagSet("import").SetParent(rootFlags)
	var (
		embedded = importFlags.StringLong("embedded", "", "import a built-in model version instead of a file")
		activate = importFlags.BoolLong("activate", "make the imported version active")
	)
	importCmd := &ff.Command{
		Name:      "import",
		Usage:     "modelctl import [--activate] (<artifact.json> | --embedded VERSION)",
		ShortHelp: "store a model artifact bound to the current feature schema",
		Flags:     importFlags,
		Exec: func(_ context.Context, args []string) error {
			var (
				a   classifier.Artifact
				err error
			)
			switch {
			case *embedded != "":
				a, err = classifier.EmbeddedArtifact(*embedded)
			case len(args) == 1:
				var data []byte
				if data, err = os.ReadFile(args[0]); err == nil {
					a, err = classifier.DecodeArtifact(data)
				}
			default:
				return fmt.Errorf("%w: need one artifact file or --embedded", common.ErrInvalidInput)
			}
			if err != nil {
				return err
			}

			store, schema, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			if a, err = a.Bind(schema); err != nil {
				return err
			}
			if err := store.Save(a); err != nil {
				return err
			}
			if *activate {
				if err := store.SetActive(a.Version); err != nil {
					return err
				}
			}
			fmt.Printf("imported %s (schema %s)\n", a.Version, a.SchemaVersion)
			return nil
		},
	}

	listFlags := ff.NewFlagSet("list").SetParent(rootFlags)
	asJSON := listFlags.BoolLong("json", "print JSON")
	listCmd := &ff.Command{
		Name:      "list",
		ShortHelp: "list stored model versions",
		Flags:     listFlags,
		Exec: func(context.Context, []string) error {
			store, schema, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			infos, err := store.List()
			if err != nil {
				return err
			}
			if *asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSCHEMA\tCREATED\tACTIVE\tDESCRIPTION")
			for _, m := range infos {
				mark := ""
				if m.Active {
					mark = "*"
				}
				schemaCol := m.SchemaVersion
				if schemaCol != schema.Version {
					schemaCol += " (stale)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					m.Version, schemaCol, m.CreatedAt.Format("2006-01-02 15:04"), mark, m.Description)
			}
			return tw.Flush()
		},
	}

	activateCmd := &ff.Command{
		Name:      "activate",
		Usage:     "modelctl activate <version>",
		ShortHelp: "make a stored version the default",
		Flags:     ff.NewFlagSet("activate").SetParent(rootFlags),
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: need exactly one version", common.ErrInvalidInput)
			}
			store, _, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetActive(args[0]); err != nil {
				return err
			}
			fmt.Printf("active: %s\n", args[0])
			return nil
		},
	}

	deleteCmd := &ff.Command{
		Name:      "delete",
		Usage:     "modelctl delete <version>",
		ShortHelp: "remove an inactive version",
		Flags:     ff.NewFlagSet("delete").SetParent(rootFlags),
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: need exactly one version", common.ErrInvalidInput)
			}
			store, _, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(args[0])
		},
	}

	root := &ff.Command{
		Name:        "modelctl",
		ShortHelp:   "manage classifier model artifacts",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{importCmd, listCmd, activateCmd, deleteCmd},
		Exec: func(context.Context, []string) error {
			return ff.ErrHelp
		},
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	err := root.ParseAndRun(context.Background(), os.Args[1:], ff.WithEnvVarPrefix("MODELCTL"))
	switch {
	case err == nil:
	case errors.Is(err, ff.ErrHelp):
		sel := root.GetSelected()
		if sel == nil {
			sel = root
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(sel))
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
