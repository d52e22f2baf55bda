package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	for name, v := range map[string]string{
		"Version":   info.Version,
		"Commit":    info.Commit,
		"BuildTime": info.BuildTime,
		"GoVersion": info.GoVersion,
	} {
		if v == "" {
			t.Errorf("%s should not be empty", name)
		}
	}
}

func TestString(t *testing.T) {
	s := String()
	info := Get()
	if !strings.HasPrefix(s, info.Version+" (") {
		t.Errorf("String() = %q, want version prefix", s)
	}
	if !strings.Contains(s, " built at "+info.BuildTime) {
		t.Errorf("String() = %q, want build time", s)
	}
}

func TestResolve(t *testing.T) {
	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.24.1",
			Main:      debug.Module{Version: "v0.3.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc123"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}

	tests := []struct {
		name    string
		version string
		commit  string
		read    func() (*debug.BuildInfo, bool)
		want    Info
	}{
		{
			name:    "ldflags win",
			version: "v1.0.0",
			commit:  "fff",
			read:    stamped,
			want:    Info{Version: "v1.0.0", Commit: "fff", BuildTime: "2026-01-02T03:04:05Z", GoVersion: "go1.24.1", Modified: true},
		},
		{
			name:    "toolchain stamp fills defaults",
			version: "dev",
			commit:  "unknown",
			read:    stamped,
			want:    Info{Version: "v0.3.0", Commit: "abc123", BuildTime: "2026-01-02T03:04:05Z", GoVersion: "go1.24.1", Modified: true},
		},
		{
			name:    "devel main module keeps dev",
			version: "dev",
			commit:  "unknown",
			read: func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{GoVersion: "go1.24.1", Main: debug.Module{Version: "(devel)"}}, true
			},
			want: Info{Version: "dev", Commit: "unknown", BuildTime: "unknown", GoVersion: "go1.24.1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(tt.version, tt.commit, "unknown", tt.read)
			if got != tt.want {
				t.Errorf("resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}

	got := resolve("dev", "unknown", "unknown", func() (*debug.BuildInfo, bool) { return nil, false })
	if got.Version != "dev" || got.GoVersion == "" {
		t.Errorf("resolve(no build info) = %+v", got)
	}
}
