package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

// Register adds all forkchat commands to root.
func Register(root *cobra.Command) {
	root.AddCommand(
		newAddCommand(),
		newAskCommand(),
		newBranchCommand(),
		newContinueCommand(),
		newRegenerateCommand(),
		newUpdateCommand(),
		newMergeCommand(),
		newShowCommand(),
		newContextCommand(),
		newCleanupCommand(),
		newResetCommand(),
		newExportCommand(),
	)
	registerGlazedCommands(root)
}

// registerGlazedCommands adds the commands that print one row per item.
func registerGlazedCommands(root *cobra.Command) {
	listCmd, err := NewListCommand()
	cobra.CheckErr(err)
	historyCmd, err := NewHistoryCommand()
	cobra.CheckErr(err)
	canMergeCmd, err := NewCanMergeCommand()
	cobra.CheckErr(err)
	templatesCmd, err := NewTemplatesCommand()
	cobra.CheckErr(err)

	for _, c := range []cmds.GlazeCommand{listCmd, historyCmd, canMergeCmd, templatesCmd} {
		cobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(c)
		cobra.CheckErr(err)
		root.AddCommand(cobraCmd)
	}
}

func addPrintEventsFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("print-events", false, "Print store events to stderr while running")
}

// withApp opens the configured store, runs f and closes everything again.
// With --print-events, store events are routed to stderr alongside f.
func withApp(cmd *cobra.Command, f func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var options []AppOption
	if cmd.Flags().Lookup("print-events") != nil {
		if printEvents, _ := cmd.Flags().GetBool("print-events"); printEvents {
			options = append(options, WithEventPrinter(cmd.ErrOrStderr()))
		}
	}
	return withAppContext(ctx, f, options...)
}

// withAppContext is withApp for commands that only get a context.
func withAppContext(ctx context.Context, f func(ctx context.Context, app *App) error, options ...AppOption) error {
	app, err := OpenApp(ctx, options...)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
	}()

	if app.Router == nil {
		return f(ctx, app)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return app.Router.Run(egCtx)
	})
	eg.Go(func() error {
		defer func() {
			_ = app.Router.Close()
		}()
		select {
		case <-app.Router.Running():
		case <-egCtx.Done():
			return egCtx.Err()
		}
		return f(egCtx, app)
	})
	return eg.Wait()
}

func resolve(app *App, ref string) (*conversation.Node, error) {
	return app.Store.Resolve(ref)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printNode(w io.Writer, n *conversation.Node) {
	header := fmt.Sprintf("%s [%s]", n.DisplayNumber, n.Status)
	if n.BranchType.IsBranch() {
		header += " " + string(n.BranchType)
	}
	_, _ = fmt.Fprintln(w, header)
	_, _ = fmt.Fprintf(w, "id: %s\n", n.ID)
	if n.SystemPrompt != "" {
		_, _ = fmt.Fprintf(w, "system: %s\n", n.SystemPrompt)
	}
	_, _ = fmt.Fprintf(w, "> %s\n", n.Prompt)
	if n.Response != "" {
		_, _ = fmt.Fprintln(w, n.Response)
	}
}
