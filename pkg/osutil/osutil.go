/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"runtime"
)

const (
	windowsExeSuffix = ".exe"
)

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

func IsLinux() bool {
	return runtime.GOOS == "linux"
}

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func CRLF() []byte {
	return crlf
}

func LineSep() []byte {
	if IsWindows() {
		return crlf
	} else {
		return lf
	}
}

// ExecutableName returns the file name of a native executable, adding the .exe suffix on Windows.
func ExecutableName(name string) string {
	if IsWindows() {
		return name + windowsExeSuffix
	}
	return name
}
