package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recrovit/rgfclient/internal/grid"
)

func TestParseSort(t *testing.T) {
	got, err := parseSort([]string{"Name", "-Id"})
	if err != nil {
		t.Fatal(err)
	}
	want := []grid.SortColumn{{Alias: "Name", Sort: 1}, {Alias: "Id", Sort: -2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseSort() mismatch (-want +got):\n%s", diff)
	}
	if _, err := parseSort([]string{"-"}); err == nil {
		t.Error("parseSort(-) succeeded")
	}
}

func TestRootCmd(t *testing.T) {
	t.Run("log level", func(t *testing.T) {
		ll := &slog.LevelVar{}
		root := newRootCmd(ll)
		root.SetArgs([]string{"--log-level", "debug", "version"})
		var out bytes.Buffer
		root.SetOut(&out)
		if err := root.ExecuteContext(t.Context()); err != nil {
			t.Fatal(err)
		}
		if ll.Level() != slog.LevelDebug {
			t.Errorf("Level() = %v, want DEBUG", ll.Level())
		}
		if strings.TrimSpace(out.String()) == "" {
			t.Error("version printed nothing")
		}
	})
	t.Run("bad log level", func(t *testing.T) {
		root := newRootCmd(&slog.LevelVar{})
		root.SetArgs([]string{"--log-level", "loud", "version"})
		if err := root.ExecuteContext(t.Context()); err == nil {
			t.Error("Execute() succeeded with an unknown log level")
		}
	})
	t.Run("schema", func(t *testing.T) {
		root := newRootCmd(&slog.LevelVar{})
		root.SetArgs([]string{"config", "schema"})
		var out bytes.Buffer
		root.SetOut(&out)
		if err := root.ExecuteContext(t.Context()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.String(), `"baseAddress"`) {
			t.Errorf("schema does not describe baseAddress:\n%s", out.String())
		}
	})
	t.Run("missing config", func(t *testing.T) {
		root := newRootCmd(&slog.LevelVar{})
		root.SetArgs([]string{"--config", t.TempDir() + "/none.yaml", "about"})
		if err := root.ExecuteContext(t.Context()); err == nil || !strings.Contains(err.Error(), "failed to read config") {
			t.Errorf("Execute() = %v, want a read error", err)
		}
	})
}
