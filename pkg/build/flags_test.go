// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName, origTime, origCommit, origVersion = buildName, buildTime, buildCommit, buildVersion
	origInfo = info

	exitCode := m.Run()

	buildName, buildTime, buildCommit, buildVersion = origName, origTime, origCommit, origVersion
	info = origInfo

	os.Exit(exitCode)
}

func reset() {
	info = Info{Name: unknown, Version: unknown, Commit: unknown, Time: unknown}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		flags      [4]string // name, time, commit, version
		wantErrMsg string
		want       Info
	}{
		{
			"All set",
			[4]string{"rtfft", "2025-04-13", "abcdef123", "v1.0.0"},
			"",
			Info{Name: "rtfft", Version: "v1.0.0", Commit: "abcdef123", Time: "2025-04-13"},
		},
		{
			"Missing commit",
			[4]string{"rtfft", "2025-04-13", "", "v1.0.0"},
			"build flags not set: commit",
			Info{Name: "rtfft", Version: "v1.0.0", Commit: unknown, Time: "2025-04-13"},
		},
		{
			"Development build",
			[4]string{"", "", "", ""},
			"build flags not set: name, version, commit, time",
			Info{Name: unknown, Version: unknown, Commit: unknown, Time: unknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			buildName, buildTime, buildCommit, buildVersion = tt.flags[0], tt.flags[1], tt.flags[2], tt.flags[3]

			err := Initialize()
			if tt.wantErrMsg == "" && err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if tt.wantErrMsg != "" && (err == nil || err.Error() != tt.wantErrMsg) {
				t.Fatalf("Initialize() error = %v, want %q", err, tt.wantErrMsg)
			}
			if got := Get(); got != tt.want {
				t.Errorf("Get() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	i := Info{Name: "rtfft", Version: "v0.3.0", Commit: "1a2b3c4d5e6f", Time: "2025-04-13T10:00:00Z"}
	want := "rtfft v0.3.0 (1a2b3c4, 2025-04-13T10:00:00Z)"
	if got := i.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	short := Info{Name: "rtfft", Version: "dev", Commit: "abc", Time: unknown}
	if got := short.String(); got != "rtfft dev (abc, unknown)" {
		t.Errorf("String() = %q", got)
	}
}
