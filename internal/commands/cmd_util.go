/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"os"

	"github.com/roslyn-ls/csharp-language-server/pkg/logger"
	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
)

// ErrorExit reports err on stderr and terminates the process with the given exit code.
func ErrorExit(log *logger.Logger, err error, code int) {
	log.Error(err, "Command failed", "exitCode", code)
	log.Flush()
	os.Exit(code)
}

func WithNewline(b []byte) []byte {
	return append(b, osutil.LineSep()...)
}
