package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

func newMergeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge SOURCE TARGET",
		Short: "Close the thread of SOURCE into TARGET",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				src, err := resolve(app, args[0])
				if err != nil {
					return err
				}
				tgt, err := resolve(app, args[1])
				if err != nil {
					return err
				}
				rec, err := app.Store.MergeNodes(ctx, src.ID, tgt.ID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s (%s)\n",
					rec.SourceDisplayNumber, rec.TargetDisplayNumber, rec.ID)
				return err
			})
		},
	}
	addPrintEventsFlag(cmd)
	return cmd
}

func newCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove nodes that have no prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				removed, err := app.Store.CleanupEmptyThreads(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d empty nodes\n", removed)
				return err
			})
		},
	}
	addPrintEventsFlag(cmd)
	return cmd
}

func newResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every node, branch and merge record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			return withApp(cmd, func(ctx context.Context, app *App) error {
				return app.Store.Reset(ctx)
			})
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm the reset")
	addPrintEventsFlag(cmd)
	return cmd
}

// exportDocument is the readable export layout. The json format writes the
// persisted state itself instead.
type exportDocument struct {
	Nodes                []*conversation.Node       `yaml:"nodes"`
	MainThread           []string                   `yaml:"mainThread"`
	MergedBranchPrefixes []string                   `yaml:"mergedBranchPrefixes"`
	MergeLog             []conversation.MergeRecord `yaml:"mergeLog"`
}

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole conversation state to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			return withApp(cmd, func(ctx context.Context, app *App) error {
				w := cmd.OutOrStdout()
				switch format {
				case "json":
					b, err := conversation.EncodeState(app.Store.Snapshot())
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(w, string(b))
					return err
				case "yaml":
					enc := yaml.NewEncoder(w)
					enc.SetIndent(2)
					if err := enc.Encode(newExportDocument(app.Store)); err != nil {
						return errors.Wrap(err, "could not encode export")
					}
					return enc.Close()
				default:
					return errors.Errorf("unknown format %q (expected json or yaml)", format)
				}
			})
		},
	}
	cmd.Flags().String("format", "json", "Output format (json, yaml)")
	return cmd
}

func newExportDocument(store *conversation.Store) exportDocument {
	st := store.Snapshot()
	ret := exportDocument{
		MergedBranchPrefixes: st.MergedBranchPrefixes,
		MergeLog:             store.MergeLog(),
	}
	for _, p := range st.Nodes {
		ret.Nodes = append(ret.Nodes, p.Value)
	}
	for _, n := range store.MainThread() {
		ret.MainThread = append(ret.MainThread, n.DisplayNumber.String())
	}
	return ret
}

type TemplatesCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*TemplatesCommand)(nil)

func NewTemplatesCommand() (*TemplatesCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &TemplatesCommand{
		CommandDescription: cmds.NewCommandDescription(
			"templates",
			cmds.WithShort("List the configured system prompt templates"),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *TemplatesCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	return withAppContext(ctx, func(ctx context.Context, app *App) error {
		list, err := app.Templates.ListTemplates(ctx)
		if err != nil {
			return err
		}
		for _, t := range list {
			row := types.NewRow(
				types.MRP("id", t.ID),
				types.MRP("name", t.Name),
				types.MRP("description", t.Description),
				types.MRP("text", t.Text),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}
