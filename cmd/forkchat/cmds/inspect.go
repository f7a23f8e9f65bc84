package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

type nodeEntry struct {
	DisplayNumber string
	Level         int
	Status        string
	BranchType    string
	BranchRoot    bool
	Merged        bool
	Prompt        string
	Response      string
	ID            string
}

// nodeEntries lists every node in display number order.
func nodeEntries(store *conversation.Store) []nodeEntry {
	var ret []nodeEntry
	for _, n := range store.AllConversationsWithBranches() {
		ret = append(ret, nodeEntry{
			DisplayNumber: n.DisplayNumber.String(),
			Level:         n.DisplayNumber.HierarchyLevel(),
			Status:        string(n.Status),
			BranchType:    string(n.BranchType),
			BranchRoot:    n.BranchType.IsBranch() && n.IsBranchRoot(),
			Merged:        n.DisplayNumber.IsBranch() && store.IsThreadMerged(n.DisplayNumber),
			Prompt:        n.Prompt,
			Response:      n.Response,
			ID:            n.ID.String(),
		})
	}
	return ret
}

type ListSettings struct {
	Full bool `glazed.parameter:"full"`
}

type ListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListCommand)(nil)

func NewListCommand() (*ListCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &ListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List all nodes in display number order"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"full",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Print prompts and responses untruncated"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &ListSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "error initializing settings")
	}

	return withAppContext(ctx, func(ctx context.Context, app *App) error {
		for _, e := range nodeEntries(app.Store) {
			prompt, response := e.Prompt, e.Response
			if !s.Full {
				prompt, response = truncate(prompt, 60), truncate(response, 60)
			}
			row := types.NewRow(
				types.MRP("display_number", e.DisplayNumber),
				types.MRP("level", e.Level),
				types.MRP("status", e.Status),
				types.MRP("branch_type", e.BranchType),
				types.MRP("branch_root", e.BranchRoot),
				types.MRP("merged", e.Merged),
				types.MRP("prompt", prompt),
				types.MRP("response", response),
				types.MRP("id", e.ID),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

type HistorySettings struct {
	Thread string `glazed.parameter:"thread"`
}

type HistoryCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryCommand)(nil)

func NewHistoryCommand() (*HistoryCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &HistoryCommand{
		CommandDescription: cmds.NewCommandDescription(
			"history",
			cmds.WithShort("Print the exchanges of a thread"),
			cmds.WithLong("Print one row per exchange leading to THREAD, which is \"main\", a display number or a node id."),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"thread",
					parameters.ParameterTypeString,
					parameters.WithHelp("Thread to print"),
					parameters.WithRequired(true),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &HistorySettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "error initializing settings")
	}

	return withAppContext(ctx, func(ctx context.Context, app *App) error {
		for i, e := range app.Store.ExtractHistory(s.Thread) {
			row := types.NewRow(
				types.MRP("index", i),
				types.MRP("user", e.UserText),
				types.MRP("assistant", e.AssistantText),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

type CanMergeSettings struct {
	Source string `glazed.parameter:"source"`
	Target string `glazed.parameter:"target"`
}

type CanMergeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*CanMergeCommand)(nil)

func NewCanMergeCommand() (*CanMergeCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &CanMergeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"can-merge",
			cmds.WithShort("Report whether SOURCE may be merged into TARGET"),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"source",
					parameters.ParameterTypeString,
					parameters.WithHelp("Branch node to merge"),
					parameters.WithRequired(true),
				),
				parameters.NewParameterDefinition(
					"target",
					parameters.ParameterTypeString,
					parameters.WithHelp("Node to merge into"),
					parameters.WithRequired(true),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *CanMergeCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &CanMergeSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "error initializing settings")
	}

	return withAppContext(ctx, func(ctx context.Context, app *App) error {
		ok, err := canMerge(app.Store, s.Source, s.Target)
		if err != nil {
			return err
		}
		return gp.AddRow(ctx, types.NewRow(
			types.MRP("source", s.Source),
			types.MRP("target", s.Target),
			types.MRP("can_merge", ok),
		))
	})
}

func canMerge(store *conversation.Store, source, target string) (bool, error) {
	src, err := store.Resolve(source)
	if err != nil {
		return false, err
	}
	tgt, err := store.Resolve(target)
	if err != nil {
		return false, err
	}
	return store.CanMergeNodes(src.ID, tgt.ID), nil
}

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [NODE]",
		Short: "Render the thread leading to NODE as markdown (main thread without NODE)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetBool("raw")
			sameThread, _ := cmd.Flags().GetBool("same-thread")
			return withApp(cmd, func(ctx context.Context, app *App) error {
				var node *conversation.Node
				if len(args) == 1 && args[0] != conversation.MainThreadID {
					var err error
					node, err = resolve(app, args[0])
					if err != nil {
						return err
					}
				}
				policy := conversation.WalkFirstFound
				if sameThread {
					policy = conversation.WalkPreferSameThread
				}
				md, err := RenderThreadMarkdown(app.Store, node, policy)
				if err != nil {
					return err
				}
				out, err := styleMarkdown(md, raw)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	cmd.Flags().Bool("raw", false, "Print plain markdown even on a terminal")
	cmd.Flags().Bool("same-thread", false, "On forks of the main thread walk, stay on the main thread")
	return cmd
}

func newContextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context [ANCHOR]",
		Short: "Print the message chain a new branch from ANCHOR would send",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templateID, _ := cmd.Flags().GetString("template")
			input, _ := cmd.Flags().GetString("input")
			return withApp(cmd, func(ctx context.Context, app *App) error {
				var anchor *conversation.NodeID
				if len(args) == 1 {
					n, err := resolve(app, args[0])
					if err != nil {
						return err
					}
					anchor = &n.ID
				}
				c, err := app.Contexts.BuildContextChain(ctx, anchor, templateID, input)
				if err != nil {
					return err
				}
				if res := c.Validate(); !res.Valid {
					return res.Err()
				}
				w := cmd.OutOrStdout()
				for _, m := range c.Messages {
					_, _ = fmt.Fprintf(w, "%s: %s\n", m.Role, m.Text())
				}
				_, _ = fmt.Fprintf(w, "\n%d messages, ~%d tokens\n", c.Metadata.TotalMessages, c.Metadata.EstimatedTokens)
				return nil
			})
		},
	}
	cmd.Flags().String("template", "", "Template id for the system prompt")
	cmd.Flags().String("input", "", "The new user input")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
