/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

import (
	"bytes"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"
)

const (
	DevelopmentVersion = "dev"
)

// Set at link time with -ldflags "-X ...".
var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

type BuildTime struct {
	time.Time
}

func (t BuildTime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}

	return []byte("\"" + t.Time.UTC().Format(time.RFC3339) + "\""), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// The time is expected to be a quoted string in RFC 3339 format.
func (t *BuildTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	parsed, parseErr := time.Parse("\""+time.RFC3339+"\"", string(data))
	if parseErr != nil {
		return parseErr
	}
	t.Time = parsed
	return nil
}

type VersionOutput struct {
	Version    string    `json:"version"`
	CommitHash string    `json:"commitHash,omitempty"`
	BuildTime  BuildTime `json:"buildTimestamp"`
	GoVersion  string    `json:"goVersion"`
	Platform   string    `json:"platform"`
}

// Version reports the build information. Values not provided at link time are taken from
// the VCS stamp the Go toolchain embeds in the binary, when available.
func Version() VersionOutput {
	retval := VersionOutput{
		Version:    ProductVersion,
		CommitHash: CommitHash,
		BuildTime:  BuildTime{parseTimestamp(BuildTimestamp)},
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if retval.Version == "" {
		retval.Version = DevelopmentVersion
	}

	if info, found := debug.ReadBuildInfo(); found {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if retval.CommitHash == "" {
					retval.CommitHash = setting.Value
				}
			case "vcs.time":
				if retval.BuildTime.IsZero() {
					retval.BuildTime = BuildTime{parseTimestamp(setting.Value)}
				}
			}
		}
	}

	return retval
}

// parseTimestamp accepts Unix seconds or RFC 3339. Anything else yields the zero time.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if seconds, parseErr := strconv.ParseInt(value, 10, 64); parseErr == nil {
		return time.Unix(seconds, 0)
	}
	if parsed, parseErr := time.Parse(time.RFC3339, value); parseErr == nil {
		return parsed
	}
	return time.Time{}
}
