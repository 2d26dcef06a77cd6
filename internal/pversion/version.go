// Copyright 2023-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pversion describes the version of the running kube-ldap binary.
package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/coreos/go-semver/semver"
	k8sstrings "k8s.io/utils/strings"
)

const devVersion = "v0.0.0"

// readBuildInfo is meant to be overwritten by tests.
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var readBuildInfo = debug.ReadBuildInfo

// gitVersion is set using a linker flag
// -ldflags "-X 'go.pinniped.dev/kube-ldap/internal/pversion.gitVersion=v1.2.3'"
// (or set for unit tests).
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var gitVersion string

// Info identifies the code a binary was built from.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the version set at link time when it is a valid semantic version.  Otherwise the version is
// derived from the VCS information which go embeds at build time.
func Get() Info {
	info := Info{
		Version:   devVersion,
		Modified:  true,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if _, err := semver.NewVersion(strings.TrimPrefix(gitVersion, "v")); err == nil {
		info.Version = gitVersion
	}

	if buildInfo, ok := readBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Commit = setting.Value
			case "vcs.time":
				info.BuildDate = setting.Value
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
	}

	if info.Version == devVersion && info.Commit != "" {
		info.Version += "-" + k8sstrings.ShortenString(info.Commit, 8)
		if info.Modified {
			info.Version += "-dirty"
		}
	}

	return info
}

func (i Info) String() string {
	return fmt.Sprintf("kube-ldap %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
}
