package cmds

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/forkchat/pkg/branchcontext"
	"github.com/go-go-golems/forkchat/pkg/chain"
	"github.com/go-go-golems/forkchat/pkg/chat"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/helpers"
	"github.com/go-go-golems/forkchat/pkg/llm"
	"github.com/go-go-golems/forkchat/pkg/persistence"
	"github.com/go-go-golems/forkchat/pkg/templates"
	"github.com/go-go-golems/forkchat/pkg/tokens"
)

// AddStoreFlags registers the flags every command reads through viper.
func AddStoreFlags(fs *pflag.FlagSet) {
	fs.String("store", persistence.KindFile, "State backend (memory, file, sqlite)")
	fs.String("store-path", "", "State file or database (default ~/.forkchat/state.json or state.db)")
	fs.String("store-key", persistence.DefaultSQLiteKey, "Conversation key inside a sqlite database")
	fs.Int("max-branch-index", conversation.DefaultMaxBranchIndex, "Highest branch index tried before falling back to a timestamp")
	fs.String("templates", "", "YAML file with system prompt templates")
	fs.String("llm", "echo", "Completion backend (echo, openai)")
	fs.String("openai-api-key", "", "OpenAI API key")
	fs.String("openai-base-url", "", "OpenAI compatible base URL")
	fs.String("model", "", "Model name")
	fs.Float64("temperature", 0, "Sampling temperature (unset: backend default)")
	fs.Int("max-tokens", 0, "Maximum tokens in a completion (0: backend default)")
}

type appOptions struct {
	events io.Writer
}

type AppOption func(*appOptions)

// WithEventPrinter prints every store event to w while the command runs.
func WithEventPrinter(w io.Writer) AppOption {
	return func(o *appOptions) {
		o.events = w
	}
}

// App bundles what a command needs, configured from viper.
type App struct {
	Store     *conversation.Store
	Blob      persistence.BlobStore
	Templates templates.Provider
	Contexts  *branchcontext.Builder
	Session   *chat.Session
	Router    *events.Router
	Options   llm.Options
}

func OpenApp(ctx context.Context, options ...AppOption) (*App, error) {
	o := appOptions{}
	for _, opt := range options {
		opt(&o)
	}

	kind := viper.GetString("store")
	path, err := storePath(kind, viper.GetString("store-path"))
	if err != nil {
		return nil, err
	}
	blob, err := persistence.Open(kind, path, viper.GetString("store-key"))
	if err != nil {
		return nil, err
	}

	ret := &App{Blob: blob, Options: modelOptions()}

	storeOptions := []conversation.StoreOption{
		conversation.WithBlobStore(blob),
		conversation.WithLogger(log.Logger),
	}
	if n := viper.GetInt("max-branch-index"); n > 0 {
		storeOptions = append(storeOptions, conversation.WithMaxBranchIndex(n))
	}
	if o.events != nil {
		ret.Router, err = events.NewRouter(events.WithVerbose(viper.GetBool("verbose")))
		if err != nil {
			_ = blob.Close()
			return nil, err
		}
		ret.Router.AddHandler("print-events", events.TopicConversation, events.HandlerFunc(events.Printer(o.events)))
		storeOptions = append(storeOptions, conversation.WithListener(events.NewListener(ret.Router.Publisher, "")))
	}

	ret.Store = conversation.NewStore(storeOptions...)
	if err := ret.Store.Open(ctx); err != nil {
		_ = ret.Close()
		return nil, err
	}

	ret.Templates, err = openTemplates(viper.GetString("templates"))
	if err != nil {
		_ = ret.Close()
		return nil, err
	}

	var chainOptions []chain.Option
	if counter, err := tokens.NewCounter(ret.Options.Model); err == nil {
		chainOptions = append(chainOptions, chain.WithTokenCounter(counter))
	} else {
		log.Debug().Err(err).Msg("token estimation disabled")
	}
	ret.Contexts = branchcontext.NewBuilder(ret.Store, ret.Templates, chainOptions...)

	client, err := openClient(ret.Options)
	if err != nil {
		_ = ret.Close()
		return nil, err
	}
	ret.Session = chat.NewSession(ret.Store, client,
		chat.WithTemplates(ret.Templates),
		chat.WithDefaults(ret.Options),
	)

	log.Debug().
		Str("store", kind).
		Str("path", path).
		Int("nodes", ret.Store.Len()).
		Msg("opened conversation store")

	return ret, nil
}

func (a *App) Close() error {
	if a.Router != nil {
		_ = a.Router.Close()
	}
	if a.Blob != nil {
		return a.Blob.Close()
	}
	return nil
}

func storePath(kind string, path string) (string, error) {
	if path != "" || kind == persistence.KindMemory {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not find home directory, set --store-path")
	}
	name := "state.json"
	if kind == persistence.KindSQLite {
		name = "state.db"
	}
	dir := filepath.Join(home, ".forkchat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "could not create %s", dir)
	}
	return filepath.Join(dir, name), nil
}

func openTemplates(path string) (templates.Provider, error) {
	if strings.TrimSpace(path) == "" {
		return templates.NewMemoryProvider(), nil
	}
	return templates.NewYAMLFileProvider(path)
}

func openClient(opts llm.Options) (llm.Client, error) {
	switch strings.ToLower(viper.GetString("llm")) {
	case "", "echo":
		return llm.NewEchoClient(), nil
	case "openai":
		return llm.NewOpenAIClient(
			viper.GetString("openai-api-key"),
			viper.GetString("openai-base-url"),
			llm.WithDefaultModel(opts.Model),
		)
	default:
		return nil, errors.Errorf("unknown llm backend %q (expected echo or openai)", viper.GetString("llm"))
	}
}

func modelOptions() llm.Options {
	ret := llm.Options{
		Model:     viper.GetString("model"),
		MaxTokens: viper.GetInt("max-tokens"),
	}
	if viper.IsSet("temperature") {
		ret.Temperature = helpers.Ptr(viper.GetFloat64("temperature"))
	}
	return ret
}
