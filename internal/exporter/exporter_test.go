package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yairfalse/awsexport/pkg/snapshot"
)

var fixedStart = time.Date(2024, time.May, 17, 14, 3, 9, 0, time.UTC)

func fixedClock() time.Time { return fixedStart }

// stubTask returns a task whose query records its invocation and returns
// either a document or err.
func stubTask(file string, tier snapshot.Tier, calls *[]string, err error) snapshot.Task {
	task := snapshot.Task{
		Name:  file,
		Label: file,
		File:  file,
		Tier:  tier,
		Query: func(_ context.Context) (any, error) {
			*calls = append(*calls, file)
			if err != nil {
				return nil, err
			}
			return map[string][]string{"Items": {file}}, nil
		},
	}
	if tier == snapshot.TierSoft {
		task.Fallback = "No " + file + " found"
	}
	return task
}

// recordingEmitter collects emitted results.
type recordingEmitter struct {
	results []snapshot.Result
	err     error
}

func (r *recordingEmitter) Emit(_ context.Context, result snapshot.Result) error {
	r.results = append(r.results, result)
	return r.err
}

func (r *recordingEmitter) Close() error { return nil }

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRun_AllSucceed(t *testing.T) {
	var calls []string
	tasks := []snapshot.Task{
		stubTask("ec2-instances", snapshot.TierHard, &calls, nil),
		stubTask("load-balancers", snapshot.TierSoft, &calls, nil),
		stubTask("iam-roles", snapshot.TierHard, &calls, nil),
	}

	root := t.TempDir()
	var out bytes.Buffer
	e := New(root, tasks, WithOutput(&out), WithClock(fixedClock))

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	wantDir := filepath.Join(root, "aws-infrastructure-export-20240517-140309")
	assert.Equal(t, wantDir, report.Session.Dir)
	assert.Equal(t, snapshot.StateCompleted, report.State)
	assert.Equal(t, 3, report.Written())
	assert.Equal(t, []string{"ec2-instances", "load-balancers", "iam-roles"}, calls)
	assert.Equal(t, []string{"ec2-instances.json", "iam-roles.json", "load-balancers.json"}, listFiles(t, wantDir))

	assert.Equal(t,
		"Exporting ec2-instances...\n"+
			"Exporting load-balancers...\n"+
			"Exporting iam-roles...\n"+
			"Export completed: "+wantDir+"\n",
		out.String())
}

func TestRun_FilesAreValidJSON(t *testing.T) {
	var calls []string
	tasks := []snapshot.Task{
		stubTask("vpcs", snapshot.TierHard, &calls, nil),
		stubTask("subnets", snapshot.TierHard, &calls, nil),
	}

	e := New(t.TempDir(), tasks, WithOutput(&bytes.Buffer{}))
	report, err := e.Run(context.Background())
	require.NoError(t, err)

	for _, res := range report.Results {
		data, err := os.ReadFile(res.Path)
		require.NoError(t, err)
		assert.True(t, json.Valid(data), "%s is not valid JSON", res.Path)
		assert.Equal(t, len(data), res.Bytes)

		var doc map[string][]string
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, []string{res.Task.File}, doc["Items"])
	}
}

func TestRun_HardFailureAborts(t *testing.T) {
	denied := errors.New("UnauthorizedOperation")
	var calls []string
	tasks := []snapshot.Task{
		stubTask("ec2-instances", snapshot.TierHard, &calls, nil),
		stubTask("vpcs", snapshot.TierHard, &calls, denied),
		stubTask("subnets", snapshot.TierHard, &calls, nil),
		stubTask("lambda-functions", snapshot.TierSoft, &calls, nil),
	}

	root := t.TempDir()
	var out bytes.Buffer
	e := New(root, tasks, WithOutput(&out), WithClock(fixedClock))

	report, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), "export vpcs")

	assert.Equal(t, snapshot.StateAborted, report.State)
	assert.Equal(t, []string{"ec2-instances", "vpcs"}, calls)
	assert.Equal(t, []string{"ec2-instances.json"}, listFiles(t, report.Session.Dir))
	assert.NotContains(t, out.String(), "Export completed")
	assert.NotContains(t, out.String(), "Exporting subnets")
}

func TestRun_SoftFailureContinues(t *testing.T) {
	var calls []string
	tasks := []snapshot.Task{
		stubTask("load-balancers", snapshot.TierSoft, &calls, errors.New("not found")),
		stubTask("rds-instances", snapshot.TierSoft, &calls, errors.New("AccessDenied")),
		stubTask("s3-buckets", snapshot.TierHard, &calls, nil),
	}

	var out bytes.Buffer
	e := New(t.TempDir(), tasks, WithOutput(&out), WithClock(fixedClock))

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, snapshot.StateCompleted, report.State)
	assert.Equal(t, []string{"load-balancers", "rds-instances", "s3-buckets"}, calls)
	assert.Equal(t, []string{"s3-buckets.json"}, listFiles(t, report.Session.Dir))
	assert.Len(t, report.SoftFailures(), 2)

	assert.Equal(t,
		"Exporting load-balancers...\n"+
			"No load-balancers found\n"+
			"Exporting rds-instances...\n"+
			"No rds-instances found\n"+
			"Exporting s3-buckets...\n"+
			"Export completed: "+report.Session.Dir+"\n",
		out.String())
}

func TestRun_EncodeFailureFollowsTier(t *testing.T) {
	unencodable := snapshot.Task{
		Name:     "functions",
		Label:    "functions",
		File:     "lambda-functions",
		Tier:     snapshot.TierSoft,
		Fallback: "No Lambda functions found",
		Query: func(_ context.Context) (any, error) {
			return map[string]any{"bad": make(chan int)}, nil
		},
	}

	var out bytes.Buffer
	e := New(t.TempDir(), []snapshot.Task{unencodable}, WithOutput(&out))

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No Lambda functions found")
	assert.Empty(t, listFiles(t, report.Session.Dir))
	assert.Contains(t, report.Results[0].Err.Error(), "encode snapshot")
}

func TestRun_CancelledContext(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())

	tasks := []snapshot.Task{
		{
			Name: "first", Label: "first", File: "first", Tier: snapshot.TierHard,
			Query: func(_ context.Context) (any, error) {
				calls = append(calls, "first")
				cancel()
				return map[string]int{}, nil
			},
		},
		stubTask("second", snapshot.TierHard, &calls, nil),
	}

	e := New(t.TempDir(), tasks, WithOutput(&bytes.Buffer{}))
	report, err := e.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, calls)
	assert.Equal(t, snapshot.StateAborted, report.State)
}

func TestRun_CancelledDuringSoftTask(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks := []snapshot.Task{
		stubTask("iam-roles", snapshot.TierHard, &calls, nil),
		{
			Name: "lambda_functions", Label: "Lambda functions", File: "lambda-functions",
			Tier: snapshot.TierSoft, Fallback: "No Lambda functions found",
			Query: func(ctx context.Context) (any, error) {
				calls = append(calls, "lambda-functions")
				cancel()
				return nil, ctx.Err()
			},
		},
	}

	var out bytes.Buffer
	e := New(t.TempDir(), tasks, WithOutput(&out), WithClock(fixedClock))
	report, err := e.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, snapshot.StateAborted, report.State)
	assert.Equal(t, []string{"iam-roles", "lambda-functions"}, calls)

	assert.NotContains(t, out.String(), "No Lambda functions found")
	assert.NotContains(t, out.String(), "Export completed")
	assert.Equal(t, []string{"iam-roles.json"}, listFiles(t, report.Session.Dir))
}

func TestRun_DirectoryNaming(t *testing.T) {
	root := t.TempDir()
	clock := fixedStart

	e := New(root, nil, WithOutput(&bytes.Buffer{}), WithClock(func() time.Time { return clock }))
	first, err := e.Run(context.Background())
	require.NoError(t, err)

	clock = clock.Add(time.Second)
	second, err := e.Run(context.Background())
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^aws-infrastructure-export-\d{8}-\d{6}$`)
	assert.Regexp(t, pattern, filepath.Base(first.Session.Dir))
	assert.Regexp(t, pattern, filepath.Base(second.Session.Dir))
	assert.NotEqual(t, first.Session.Dir, second.Session.Dir)
	assert.Len(t, listFiles(t, root), 2)
}

func TestRun_DirectoryCreateFails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(root, []byte("file, not dir"), 0o644))

	e := New(root, nil, WithOutput(&bytes.Buffer{}))
	_, err := e.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create export directory")
}

func TestRun_Emitter(t *testing.T) {
	var calls []string
	tasks := []snapshot.Task{
		stubTask("vpcs", snapshot.TierHard, &calls, nil),
		stubTask("rds-instances", snapshot.TierSoft, &calls, errors.New("nope")),
	}

	rec := &recordingEmitter{err: errors.New("backend down")}
	e := New(t.TempDir(), tasks, WithOutput(&bytes.Buffer{}), WithEmitter(rec))

	_, err := e.Run(context.Background())
	require.NoError(t, err, "emitter errors must not change the export outcome")

	require.Len(t, rec.results, 2)
	assert.True(t, rec.results[0].OK())
	assert.NotEmpty(t, rec.results[0].Path)
	assert.False(t, rec.results[1].OK())
	assert.Empty(t, rec.results[1].Path)
}

func TestRun_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)

	var calls []string
	tasks := []snapshot.Task{
		stubTask("vpcs", snapshot.TierHard, &calls, nil),
		stubTask("rds-instances", snapshot.TierSoft, &calls, errors.New("nope")),
	}

	e := New(t.TempDir(), tasks, WithOutput(&bytes.Buffer{}), WithTracer(provider.Tracer("test")))
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"export.vpcs", "export.rds-instances", "export"}, names)

	for _, s := range spans {
		if s.Name == "export.rds-instances" {
			assert.Len(t, s.Events, 1, "query error should be recorded on the span")
		}
	}
}
