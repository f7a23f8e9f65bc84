package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

func newAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add PROMPT [RESPONSE]",
		Short: "Append an exchange to the main thread without calling a model",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				response := ""
				if len(args) > 1 {
					response = args[1]
				}
				n, err := app.Store.AddConversation(ctx, args[0], response, conversation.Metadata{})
				if err != nil {
					return err
				}
				printNode(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	addPrintEventsFlag(cmd)
	return cmd
}

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask PROMPT",
		Short: "Ask the model on the main thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				n, err := app.Session.Ask(ctx, args[0], app.Options)
				if n != nil {
					printNode(cmd.OutOrStdout(), n)
				}
				return err
			})
		},
	}
	addPrintEventsFlag(cmd)
	return cmd
}

func newBranchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch PARENT PROMPT",
		Short: "Open a branch under PARENT with its first prompt",
		Long: `Open a branch under PARENT (display number or id).

Knowledge branches inherit the conversation up to PARENT, virgin branches
start from nothing and personality branches run under the system prompt of
--template. Without --response the model is asked.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeFlag, _ := cmd.Flags().GetString("type")
			templateID, _ := cmd.Flags().GetString("template")
			response, _ := cmd.Flags().GetString("response")

			branchType, err := conversation.ParseBranchType(typeFlag)
			if err != nil {
				return err
			}
			if !branchType.IsBranch() {
				return errors.Wrapf(conversation.ErrInvalidBranchType, "use virgin, personality or knowledge, not %q", typeFlag)
			}

			return withApp(cmd, func(ctx context.Context, app *App) error {
				parent, err := resolve(app, args[0])
				if err != nil {
					return err
				}
				if response == "" {
					n, err := app.Session.Branch(ctx, parent.ID, branchType, templateID, args[1], app.Options)
					if n != nil {
						printNode(cmd.OutOrStdout(), n)
					}
					return err
				}

				c, err := app.Contexts.ForBranchType(ctx, branchType, &parent.ID, templateID)
				if err != nil {
					return err
				}
				h, err := app.Store.CreateBranch(parent.ID, branchType, c.SystemPrompt)
				if err != nil {
					return err
				}
				n, err := app.Store.StartBranch(ctx, h, args[1], response, conversation.Metadata{})
				if err != nil {
					return err
				}
				printNode(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	cmd.Flags().String("type", string(conversation.BranchTypeKnowledge), "Branch type (virgin, personality, knowledge)")
	cmd.Flags().String("template", "", "Template id for the system prompt")
	cmd.Flags().String("response", "", "Store this response instead of asking the model")
	addPrintEventsFlag(cmd)
	return cmd
}

func newContinueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continue NODE PROMPT",
		Short: "Continue the branch NODE belongs to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, _ := cmd.Flags().GetString("response")
			return withApp(cmd, func(ctx context.Context, app *App) error {
				node, err := resolve(app, args[0])
				if err != nil {
					return err
				}
				var n *conversation.Node
				if response == "" {
					n, err = app.Session.Continue(ctx, node.ID, args[1], app.Options)
				} else {
					n, err = app.Store.AddConversationToBranch(ctx, node.ID, args[1], response, conversation.Metadata{})
				}
				if n != nil {
					printNode(cmd.OutOrStdout(), n)
				}
				return err
			})
		},
	}
	cmd.Flags().String("response", "", "Store this response instead of asking the model")
	addPrintEventsFlag(cmd)
	return cmd
}

func newRegenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate NODE",
		Short: "Ask the model again for an existing node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				node, err := resolve(app, args[0])
				if err != nil {
					return err
				}
				n, err := app.Session.Regenerate(ctx, node.ID, app.Options)
				if n != nil {
					printNode(cmd.OutOrStdout(), n)
				}
				return err
			})
		},
	}
	addPrintEventsFlag(cmd)
	return cmd
}

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update NODE",
		Short: "Set the response, status or model of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := conversation.Patch{}
			if cmd.Flags().Changed("response") {
				v, _ := cmd.Flags().GetString("response")
				patch.Response = &v
			}
			if cmd.Flags().Changed("status") {
				v, _ := cmd.Flags().GetString("status")
				st, err := conversation.ParseStatus(v)
				if err != nil {
					return err
				}
				patch.Status = &st
			}
			if cmd.Flags().Changed("set-model") {
				v, _ := cmd.Flags().GetString("set-model")
				patch.Model = &v
			}
			if patch.Response == nil && patch.Status == nil && patch.Model == nil {
				return errors.New("nothing to update, pass --response, --status or --set-model")
			}

			return withApp(cmd, func(ctx context.Context, app *App) error {
				node, err := resolve(app, args[0])
				if err != nil {
					return err
				}
				n, err := app.Store.UpdateConversation(ctx, node.ID, patch)
				if err != nil {
					return err
				}
				printNode(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	cmd.Flags().String("response", "", "Response text")
	cmd.Flags().String("status", "", "Status (ready, processing, complete, error)")
	cmd.Flags().String("set-model", "", "Model recorded in the node metadata")
	addPrintEventsFlag(cmd)
	return cmd
}
