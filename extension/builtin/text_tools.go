package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/BaSui01/agentcmd/extension"
	"github.com/BaSui01/agentcmd/types"
)

// TextToolsName is the identifier of the text tools extension.
const TextToolsName = "text_tools"

func init() {
	extension.Register(TextToolsName, NewTextTools)
}

// TextTools exposes simple text commands with explicitly declared schemas.
type TextTools struct{}

// NewTextTools builds the extension. It takes no settings.
func NewTextTools(extension.Settings) (extension.Extension, error) {
	return &TextTools{}, nil
}

func (t *TextTools) Name() string { return TextToolsName }

func (t *TextTools) Commands() []extension.Command {
	return []extension.Command{
		{
			FriendlyName: "Count Words",
			FunctionName: "count_words",
			Params:       []types.Param{{Name: "text"}},
			Handler:      t.countWords,
		},
		{
			FriendlyName: "Summarize Text",
			FunctionName: "summarize",
			Params:       []types.Param{{Name: "text"}, {Name: "max_sentences", Default: 3}},
			Handler:      t.summarize,
		},
	}
}

func (t *TextTools) countWords(_ context.Context, args map[string]any) (string, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return "", err
	}
	return strconv.Itoa(len(strings.Fields(text))), nil
}

// summarize keeps the first max_sentences sentences.
func (t *TextTools) summarize(_ context.Context, args map[string]any) (string, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return "", err
	}
	limit, err := intArg(args, "max_sentences")
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		return "", fmt.Errorf("max_sentences must be positive")
	}

	var (
		sentences []string
		current   strings.Builder
	)
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimFunc(current.String(), unicode.IsSpace); s != "" {
		sentences = append(sentences, s)
	}
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	return strings.Join(sentences, " "), nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return v, nil
}

func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
}
