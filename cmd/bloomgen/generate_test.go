package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jcalabro/bitbloom"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir        string
	input      string
	validation string
	prefix     string
	entries    []string
}

func newFixture(t *testing.T, numEntries, numValidation int) fixture {
	t.Helper()
	dir := t.TempDir()

	fx := fixture{
		dir:        dir,
		input:      filepath.Join(dir, "input.txt"),
		validation: filepath.Join(dir, "validation.txt"),
		prefix:     filepath.Join(dir, "out"),
	}

	var in strings.Builder
	for i := range numEntries {
		entry := fmt.Sprintf("domain-%d.example", i)
		fx.entries = append(fx.entries, entry)
		// Every entry twice plus a blank line: duplicates collapse.
		fmt.Fprintf(&in, "%s\n%s\n\n", entry, entry)
	}
	require.NoError(t, os.WriteFile(fx.input, []byte(in.String()), 0o644))

	var val strings.Builder
	for i := range numValidation {
		fmt.Fprintf(&val, "other-%d.example\n", i)
	}
	// Input entries in the validation set are never whitelisted.
	for _, e := range fx.entries {
		fmt.Fprintln(&val, e)
	}
	require.NoError(t, os.WriteFile(fx.validation, []byte(val.String()), 0o644))

	return fx
}

func (fx fixture) args(flags ...string) []string {
	return append(flags, fx.input, fx.validation, fx.prefix)
}

func readManifest(t *testing.T, fx fixture) manifest {
	t.Helper()
	data, err := os.ReadFile(fx.prefix + "-bloom-spec.json")
	require.NoError(t, err)
	var m manifest
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func readWhitelist(t *testing.T, fx fixture) []string {
	t.Helper()
	data, err := os.ReadFile(fx.prefix + "-whitelist.json")
	require.NoError(t, err)
	var wl whitelist
	require.NoError(t, json.Unmarshal(data, &wl))
	require.NotNil(t, wl.Data)
	return wl.Data
}

func TestRunNative(t *testing.T) {
	fx := newFixture(t, 500, 2000)

	var out bytes.Buffer
	require.NoError(t, run(fx.args("-log-level", "NOOP"), &out))
	require.Contains(t, out.String(), fx.prefix+"-bloom.bin")

	raw, err := os.ReadFile(fx.prefix + "-bloom.bin")
	require.NoError(t, err)
	f, err := bitbloom.UnmarshalBinary(raw)
	require.NoError(t, err)

	for _, e := range fx.entries {
		require.True(t, f.TestString(e), "false negative for %q", e)
	}
	require.Equal(t, uint64(len(fx.entries)), f.Count())

	m := readManifest(t, fx)
	sum := sha256.Sum256(raw)
	require.Equal(t, hex.EncodeToString(sum[:]), m.SHA256)
	// The blank line is a distinct entry.
	require.Equal(t, len(fx.entries)+1, m.TotalEntries)
	require.Equal(t, defaultErrorRate, m.ErrorRate)
	require.Equal(t, f.Cap(), m.Bits)
	require.Equal(t, f.K(), m.Hashes)
	require.Equal(t, "xxh3", m.Hash)
	require.Equal(t, formatNative, m.Format)

	wantM, wantK, err := bitbloom.OptimalParams(uint64(m.TotalEntries), defaultErrorRate)
	require.NoError(t, err)
	require.Equal(t, wantM, m.Bits)
	require.Equal(t, wantK, m.Hashes)
}

func TestRunWhitelistHoldsFalsePositives(t *testing.T) {
	fx := newFixture(t, 10, 1000)

	// A coarse filter guarantees some false positives.
	require.NoError(t, run(fx.args("-log-level", "NOOP", "-fp", "0.5"), &bytes.Buffer{}))

	raw, err := os.ReadFile(fx.prefix + "-bloom.bin")
	require.NoError(t, err)
	f, err := bitbloom.UnmarshalBinary(raw)
	require.NoError(t, err)

	wl := readWhitelist(t, fx)
	require.NotEmpty(t, wl)
	require.True(t, slices.IsSorted(wl))
	for _, e := range wl {
		require.True(t, f.TestString(e))
		require.NotContains(t, fx.entries, e)
	}

	// Every validation entry that tests positive and was not added is listed.
	var want []string
	for i := range 1000 {
		e := fmt.Sprintf("other-%d.example", i)
		if f.TestString(e) {
			want = append(want, e)
		}
	}
	slices.Sort(want)
	require.Equal(t, want, wl)
}

func TestRunEmptyWhitelist(t *testing.T) {
	fx := newFixture(t, 50, 0)
	require.NoError(t, run(fx.args("-log-level", "NOOP"), &bytes.Buffer{}))

	data, err := os.ReadFile(fx.prefix + "-whitelist.json")
	require.NoError(t, err)
	require.Contains(t, string(data), `"data": []`)
	require.Empty(t, readWhitelist(t, fx))
}

func TestRunLegacy(t *testing.T) {
	fx := newFixture(t, 200, 500)
	require.NoError(t, run(fx.args("-log-level", "NOOP", "-legacy", "-hash", "murmur3"), &bytes.Buffer{}))

	m := readManifest(t, fx)
	require.Equal(t, formatLegacy, m.Format)
	require.Equal(t, "legacy", m.Hash)

	file, err := os.Open(fx.prefix + "-bloom.bin")
	require.NoError(t, err)
	defer file.Close()

	f, err := bitbloom.ReadLegacy(file, uint64(m.TotalEntries))
	require.NoError(t, err)
	require.Equal(t, m.Bits, f.Cap())
	require.Equal(t, m.Hashes, f.K())
	for _, e := range fx.entries {
		require.True(t, f.TestString(e), "false negative for %q", e)
	}
}

func TestRunHashFlag(t *testing.T) {
	for _, name := range []string{"murmur3", "xxhash"} {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, 100, 100)
			require.NoError(t, run(fx.args("-log-level", "NOOP", "-hash", name), &bytes.Buffer{}))
			require.Equal(t, name, readManifest(t, fx).Hash)
		})
	}
}

func TestRunErrors(t *testing.T) {
	fx := newFixture(t, 10, 10)

	t.Run("missing args", func(t *testing.T) {
		err := run([]string{fx.input}, &bytes.Buffer{})
		require.ErrorIs(t, err, errUsage)
	})

	t.Run("unknown flag", func(t *testing.T) {
		err := run(fx.args("-bogus"), &bytes.Buffer{})
		require.ErrorIs(t, err, errUsage)
	})

	t.Run("unknown hash", func(t *testing.T) {
		err := run(fx.args("-hash", "sha1"), &bytes.Buffer{})
		require.ErrorIs(t, err, bitbloom.ErrInvalidConfiguration)
	})

	t.Run("invalid rate", func(t *testing.T) {
		err := run(fx.args("-log-level", "NOOP", "-fp", "1.5"), &bytes.Buffer{})
		require.ErrorIs(t, err, bitbloom.ErrInvalidConfiguration)
	})

	t.Run("missing input", func(t *testing.T) {
		err := run([]string{"-log-level", "NOOP", filepath.Join(fx.dir, "nope"), fx.validation, fx.prefix}, &bytes.Buffer{})
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty input", func(t *testing.T) {
		empty := filepath.Join(fx.dir, "empty.txt")
		require.NoError(t, os.WriteFile(empty, nil, 0o644))
		err := run([]string{"-log-level", "NOOP", empty, fx.validation, fx.prefix}, &bytes.Buffer{})
		require.ErrorIs(t, err, bitbloom.ErrInvalidConfiguration)
	})
}
