package cmds

import (
	"bytes"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/messages"
)

const threadTemplate = `# {{ .Title }}
{{- if .Merged }}

_This thread was merged._
{{- end }}
{{- if .SystemPrompt }}

> **system:** {{ .SystemPrompt | trim }}
{{- end }}
{{ range $i, $e := .Exchanges }}
### {{ add $i 1 }}. {{ $e.UserText | trim | trunc 60 }}

**User:** {{ $e.UserText | trim }}

**Assistant:** {{ $e.AssistantText | trim | default "_(no response yet)_" }}
{{ end -}}
{{- if not .Exchanges }}
_Empty thread._
{{ end -}}
`

type threadData struct {
	Title        string
	SystemPrompt string
	Merged       bool
	Exchanges    []messages.Exchange
}

// RenderThreadMarkdown renders the exchanges leading to node as markdown.
// A nil node renders the main thread walk.
func RenderThreadMarkdown(store *conversation.Store, node *conversation.Node, policy conversation.WalkPolicy) (string, error) {
	data := threadData{}
	if node == nil {
		data.Title = "Main thread"
		data.Exchanges = conversation.ExtractConversationHistoryWith(
			store.AllConversationsWithBranches(), conversation.MainThreadID, policy)
	} else {
		history, systemPrompt, err := store.HistoryFor(node.ID)
		if err != nil {
			return "", err
		}
		data.Title = "Thread " + node.DisplayNumber.String()
		if node.BranchType.IsBranch() {
			data.Title += " (" + string(node.BranchType) + ")"
		}
		data.SystemPrompt = systemPrompt
		data.Merged = node.DisplayNumber.IsBranch() && store.IsThreadMerged(node.DisplayNumber)
		data.Exchanges = append(history, node.Exchange())
	}

	t, err := template.New("thread").Funcs(sprig.TxtFuncMap()).Parse(threadTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// styleMarkdown renders markdown for the terminal when stdout is one.
func styleMarkdown(md string, raw bool) (string, error) {
	if raw || !isatty.IsTerminal(os.Stdout.Fd()) {
		return md, nil
	}
	return glamour.Render(md, "dark")
}
