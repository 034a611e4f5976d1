package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcmd/types"
)

type embeddedArgs struct {
	Verbose bool `json:"verbose" default:"true"`
}

type sampleArgs struct {
	embeddedArgs
	Query   string   `json:"query"`
	Limit   int      `json:"limit,omitempty" default:"5"`
	Ratio   float64  `json:"ratio" default:"0.5"`
	Tags    []string `json:"tags" default:"a, b"`
	Odd     int      `json:"odd" default:"many"`
	Skipped string   `json:"-"`
	hidden  string
}

func TestDescribe_TypedArgs(t *testing.T) {
	cmd := Typed("Sample", "sample", func(context.Context, sampleArgs) (string, error) { return "", nil })

	schema := Describe(cmd)
	assert.Equal(t, []string{"verbose", "query", "limit", "ratio", "tags", "odd"}, schema.Names())

	want := map[string]any{
		"verbose": true,
		"query":   nil,
		"limit":   5,
		"ratio":   0.5,
		"tags":    []any{"a", "b"},
		"odd":     "many",
	}
	assert.Equal(t, want, schema.Map())
}

func TestDescribe_ExplicitParamsExcludeImplicit(t *testing.T) {
	cmd := Command{
		FriendlyName: "Explicit",
		Params: []types.Param{
			{Name: ReceiverParam},
			{Name: "a"},
			{Name: "b", Default: 5},
			{Name: CatchAllParam},
			{Name: CatchAllPositional, Default: []any{}},
			{Name: "a", Default: "dup"},
			{Name: ""},
		},
	}

	schema := Describe(cmd)
	assert.Equal(t, types.ParamSchema{{Name: "a"}, {Name: "b", Default: 5}}, schema)
}

func TestDescribe_SyncAndAsyncHandlersIdentical(t *testing.T) {
	params := []types.Param{{Name: "query"}, {Name: "max_results", Default: 5}}
	sync := Command{FriendlyName: "sync", Params: params, Handler: func(context.Context, map[string]any) (string, error) {
		return "now", nil
	}}
	async := Command{FriendlyName: "async", Params: params, Handler: func(ctx context.Context, _ map[string]any) (string, error) {
		ch := make(chan string, 1)
		go func() { ch <- "later" }()
		select {
		case v := <-ch:
			return v, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}

	assert.Equal(t, Describe(sync), Describe(async))
}

func TestTyped_HandlerDecodesArgs(t *testing.T) {
	var got sampleArgs
	cmd := Typed("Sample", "sample", func(_ context.Context, a sampleArgs) (string, error) {
		got = a
		return "ok", nil
	})

	out, err := cmd.Handler(context.Background(), map[string]any{"query": "q", "limit": 7, "ratio": nil})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "q", got.Query)
	assert.Equal(t, 7, got.Limit)
	assert.Zero(t, got.Ratio)
}

type boundedArgs struct {
	Retries uint          `json:"retries" default:"3"`
	Offset  uint          `json:"offset" default:"-1"`
	Wait    time.Duration `json:"wait" default:"5s"`
	Delta   int8          `json:"delta" default:"300"`
}

func TestDescribe_DefaultsMatchFieldTypes(t *testing.T) {
	var got boundedArgs
	cmd := Typed("Bounded", "bounded", func(_ context.Context, a boundedArgs) (string, error) {
		got = a
		return "ok", nil
	})

	schema := Describe(cmd)
	assert.Equal(t, map[string]any{
		"retries": uint64(3),
		"offset":  "-1",
		"wait":    int64(5 * time.Second),
		"delta":   "300",
	}, schema.Map())

	args := Reconcile(schema, map[string]any{"offset": 2, "delta": 1})
	_, err := cmd.Handler(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, boundedArgs{Retries: 3, Offset: 2, Wait: 5 * time.Second, Delta: 1}, got)
}

func TestTyped_HandlerRejectsWrongTypes(t *testing.T) {
	cmd := Typed("Sample", "sample", func(context.Context, sampleArgs) (string, error) { return "", nil })
	_, err := cmd.Handler(context.Background(), map[string]any{"limit": "seven"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode arguments")
}

func TestDescribeSettings(t *testing.T) {
	ext, err := newTuned(Settings{})
	require.NoError(t, err)

	schema := DescribeSettings(ext)
	assert.Equal(t, types.ParamSchema{{Name: "greeting", Default: "hello"}}, schema)

	assert.Nil(t, DescribeSettings(&fakeExtension{name: "plain"}))
}
