package clip

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCopier(t *testing.T, nativeErr, osc52Err error, tty bool) (*Copier, *[]Method) {
	t.Helper()
	var tried []Method
	c := New()
	c.FallbackDir = t.TempDir()
	c.native = func(string) error {
		tried = append(tried, MethodNative)
		return nativeErr
	}
	c.osc52 = func(io.Writer, string) error {
		tried = append(tried, MethodOSC52)
		return osc52Err
	}
	c.isTTY = func(*os.File) bool { return tty }
	c.now = func() time.Time { return time.Unix(0, 42) }
	return c, &tried
}

func TestCopy_Native(t *testing.T) {
	t.Parallel()
	c, tried := testCopier(t, nil, nil, true)

	res, err := c.Copy("report")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Empty(t, res.FilePath)
	assert.Equal(t, []Method{MethodNative}, *tried)
}

func TestCopy_OSC52Fallback(t *testing.T) {
	t.Parallel()
	c, tried := testCopier(t, errors.New("no xclip"), nil, true)

	res, err := c.Copy("report")
	require.NoError(t, err)
	assert.Equal(t, MethodOSC52, res.Method)
	assert.Equal(t, []Method{MethodNative, MethodOSC52}, *tried)
}

func TestCopy_FileFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tty     bool
		osc52   error
		wantTry []Method
	}{
		{"not a terminal", false, nil, []Method{MethodNative}},
		{"osc52 fails", true, errors.New("write failed"), []Method{MethodNative, MethodOSC52}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, tried := testCopier(t, errors.New("no xclip"), tt.osc52, tt.tty)

			res, err := c.Copy("report body")
			require.NoError(t, err)
			assert.Equal(t, MethodFile, res.Method)
			assert.Equal(t, filepath.Join(c.FallbackDir, "crashlog-copy-42.txt"), res.FilePath)
			assert.Equal(t, tt.wantTry, *tried)

			data, err := os.ReadFile(res.FilePath)
			require.NoError(t, err)
			assert.Equal(t, "report body", string(data))
		})
	}
}

func TestCopy_LargeTextSkipsOSC52(t *testing.T) {
	t.Parallel()
	c, tried := testCopier(t, errors.New("no xclip"), nil, true)

	res, err := c.Copy(string(bytes.Repeat([]byte("x"), osc52LimitBytes+1)))
	require.NoError(t, err)
	assert.Equal(t, MethodFile, res.Method)
	assert.Equal(t, []Method{MethodNative}, *tried)
}

func TestCopy_Empty(t *testing.T) {
	t.Parallel()
	c, _ := testCopier(t, nil, nil, true)

	_, err := c.Copy("")
	assert.Error(t, err)
}

func TestWriteOSC52(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("STY", "")

	var buf bytes.Buffer
	require.NoError(t, writeOSC52(&buf, "hi"))
	assert.Contains(t, buf.String(), "\x1b]52;c;aGk=")
}
