package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/recordcache/config"
)

func run(t *testing.T, env map[string]string, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(context.Background(), &out, &errOut, append([]string{"rcctl"}, args...), env)
	return out.String(), errOut.String(), code
}

func TestUsage(t *testing.T) {
	out, _, code := run(t, nil)
	require.Equal(t, 0, code)
	require.Contains(t, out, "versions <get|renew|delete> <key>...")

	_, errOut, code := run(t, nil, "bogus")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "unknown command: bogus")
}

func TestInitThenCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc.hujson")

	out, errOut, code := run(t, nil, "init", path)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "wrote "+path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.Sample, string(b))

	_, errOut, code = run(t, nil, "init", path)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "already exists")

	_, errOut, code = run(t, nil, "init", "--force", path)
	require.Equal(t, 0, code, errOut)

	out, errOut, code = run(t, map[string]string{configEnv: path}, "check")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, path+": ok")
	require.Contains(t, out, "entities: 2")
	require.Contains(t, out, "unique=email index=team request_cache store=hot")
	require.Contains(t, out, "full_table")
}

func TestCheckReportsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hujson")
	require.NoError(t, os.WriteFile(path, []byte(`{"versions": {"kind": "redis"}, "records": {"kind": "memory"},
		"entities": [{"name": "a", "attributes": {"id": "integer"}}]}`), 0o600))

	_, errOut, code := run(t, nil, "check", path)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "versions.addr")
}

func TestVersionsAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	env := map[string]string{redisAddrEnv: mr.Addr()}

	out, errOut, code := run(t, env, "versions", "get", "rc/person/1")
	require.Equal(t, 0, code, errOut)
	require.Equal(t, "rc/person/1\t-\n", out)

	out, errOut, code = run(t, env, "versions", "renew", "rc/person/1", "rc/person/2", "--prefix", "rcv:")
	require.Equal(t, 0, code, errOut)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
	require.True(t, mr.Exists("rcv:rc/person/1"))
	require.True(t, mr.Exists("rcv:rc/person/2"))

	out, _, _ = run(t, env, "versions", "--prefix", "rcv:", "get", "rc/person/1")
	require.NotEqual(t, "rc/person/1\t-\n", out)

	out, errOut, code = run(t, env, "versions", "--prefix", "rcv:", "delete", "rc/person/1")
	require.Equal(t, 0, code, errOut)
	require.Equal(t, "rc/person/1\tdeleted\n", out)
	require.False(t, mr.Exists("rcv:rc/person/1"))
}

func TestVersionsRejectsBadInvocations(t *testing.T) {
	_, errOut, code := run(t, nil, "versions", "get")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "at least one key")

	_, errOut, code = run(t, map[string]string{redisAddrEnv: "127.0.0.1:1"}, "versions", "bump", "k")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, `unknown action "bump"`)
}

func TestVersionsNeedsSharedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc.hujson")
	require.NoError(t, os.WriteFile(path, []byte(`{"versions": {"kind": "memory"}, "records": {"kind": "memory"},
		"entities": [{"name": "a", "attributes": {"id": "integer"}}]}`), 0o600))

	_, errOut, code := run(t, nil, "versions", "-c", path, "get", "k")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "only a shared redis store")
}
