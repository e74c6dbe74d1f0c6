package delivery

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

func TestProcessStarter_StartsDeliverCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var (
		gotName string
		gotArgs []string
	)
	s := &ProcessStarter{
		HandoffDir: filepath.Join(dir, "envelopes"),
		Executable: "/opt/app/bin/app",
		command: func(name string, args ...string) *exec.Cmd {
			gotName, gotArgs = name, args
			// The test binary exits at once when no test matches.
			return exec.Command(os.Args[0], "-test.run=^$")
		},
	}
	app := &platform.Context{AppName: "billing", ConfigFile: "/etc/app/.crashlog.yaml"}

	require.NoError(t, s.StartDelivery(app, "meta<br>panic: boom", ""))

	assert.Equal(t, "/opt/app/bin/app", gotName)
	require.Len(t, gotArgs, 5)
	assert.Equal(t, "deliver", gotArgs[0])
	assert.Equal(t, "--envelope", gotArgs[1])
	assert.Equal(t, []string{"--config", "/etc/app/.crashlog.yaml"}, gotArgs[3:])

	env, err := LoadEnvelope(gotArgs[2])
	require.NoError(t, err)
	assert.Equal(t, "meta<br>panic: boom", env.Report)
	assert.Equal(t, "billing", env.App.AppName)
}

func TestProcessStarter_Defaults(t *testing.T) {
	t.Parallel()

	var gotName string
	var gotArgs []string
	s := &ProcessStarter{
		HandoffDir: t.TempDir(),
		command: func(name string, args ...string) *exec.Cmd {
			gotName, gotArgs = name, args
			return exec.Command(os.Args[0], "-test.run=^$")
		},
	}

	require.NoError(t, s.StartDelivery(&platform.Context{Executable: "/usr/bin/svc"}, "r", ""))
	assert.Equal(t, "/usr/bin/svc", gotName)
	assert.Len(t, gotArgs, 3, "no --config without a config file")
}

func TestProcessStarter_Errors(t *testing.T) {
	t.Parallel()

	s := &ProcessStarter{}
	assert.ErrorContains(t, s.StartDelivery(nil, "r", ""), "handoff dir")

	s = &ProcessStarter{
		HandoffDir: t.TempDir(),
		Executable: filepath.Join(t.TempDir(), "does-not-exist"),
	}
	assert.ErrorContains(t, s.StartDelivery(nil, "r", ""), "starting delivery process")
}

type recordingTransport struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Send(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingTransport) sent() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envs...)
}

func TestInlineStarter_DeliversInBackground(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	dir := t.TempDir()
	s := &InlineStarter{
		Dispatcher: NewDispatcher(true, WithTransports(tr)),
		HandoffDir: dir,
	}

	require.NoError(t, s.StartDelivery(&platform.Context{AppName: "billing"}, "meta<br>c", ""))

	assert.Eventually(t, func() bool { return len(tr.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	env := tr.sent()[0]
	assert.Equal(t, "meta<br>c", env.Report)
	assert.FileExists(t, filepath.Join(dir, env.FileName()))
}

func TestInlineStarter_RequiresDispatcher(t *testing.T) {
	t.Parallel()

	assert.Error(t, (&InlineStarter{}).StartDelivery(nil, "r", ""))
}

func TestNopStarter(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NopStarter{}.StartDelivery(nil, "r", "/tmp/x.log"))
}
