/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roslyn-ls/csharp-language-server/pkg/osutil"
	"github.com/roslyn-ls/csharp-language-server/pkg/resiliency"
)

const (
	CSHARP_LS_DIAGNOSTICS_LOG_FOLDER = "CSHARP_LS_DIAGNOSTICS_LOG_FOLDER" // Folder to write diagnostics logs to (defaults to a temp folder)
	CSHARP_LS_DIAGNOSTICS_LOG_LEVEL  = "CSHARP_LS_DIAGNOSTICS_LOG_LEVEL"  // Log level to include in diagnostics logs (defaults to none)
	CSHARP_LS_SESSION_ID             = "CSHARP_LS_SESSION_ID"             // Session ID to include in log file names

	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
)

var (
	defaultLogPath = filepath.Join(os.TempDir(), "csharp-language-server", "logs")
	sessionId      string
)

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger that writes human-readable output to stderr, and (if enabled via environment)
// machine-readable output to a diagnostics log file. Standard output is never written to:
// it carries the language server protocol.
func New(name string) *Logger {
	return newWithConsole(name, zapcore.Lock(os.Stderr))
}

func newWithConsole(name string, console zapcore.WriteSyncer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if osutil.IsWindows() {
		encoderConfig.LineEnding = string(osutil.CRLF())
	}
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	consoleAtomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, console, consoleAtomicLevel),
	}

	var diagnosticsLogErr error
	var diagnosticsLogFile io.Closer
	if logCore, logFile, coreErr := getDiagnosticsLogCore(name, encoderConfig); coreErr != nil {
		if !errors.Is(coreErr, errDiagnosticsLogNotEnabled) {
			diagnosticsLogErr = coreErr
		}
	} else {
		cores = append(cores, logCore)
		diagnosticsLogFile = logFile
	}

	zapLogger := zap.New(zapcore.NewTee(cores...)).Named(name)
	log := zapr.NewLogger(zapLogger)

	if diagnosticsLogErr != nil {
		log.Error(diagnosticsLogErr, "Failed to enable diagnostics log output")
	}

	return &Logger{
		Logger:      log,
		name:        name,
		atomicLevel: consoleAtomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
			if diagnosticsLogFile != nil {
				_ = diagnosticsLogFile.Close()
			}
		},
	}
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Level() zapcore.Level {
	return l.atomicLevel.Level()
}

// Flush writes out buffered log entries and closes the diagnostics log file, if any.
// The logger should not be used after Flush.
func (l *Logger) Flush() {
	l.flush()
}

// Add verbosity flag to enable setting console log levels
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := NewLevelFlagValue(func(level zapcore.Level) {
		l.SetLevel(level)
	})
	fs.VarP(&levelVal, verbosityFlagName, verbosityFlagShortName, "Logging verbosity level (e.g. -v=debug). Can be one of 'debug', 'info', 'warn' or 'error', or any positive integer corresponding to increasing levels of debug verbosity.")
}

func getDiagnosticsLogCore(name string, encoderConfig zapcore.EncoderConfig) (zapcore.Core, *os.File, error) {
	logLevel, levelErr := GetDiagnosticsLogLevel()
	if levelErr != nil {
		return nil, nil, levelErr
	}

	logFolder, folderErr := EnsureDiagnosticsLogsFolder()
	if folderErr != nil {
		return nil, nil, folderErr
	}

	// The log file name is <sessionid>-<name>-<pid>. Several proxies started by the same editor session
	// may race for the same name (pid reuse), so retry a few times before giving up on the file log.
	b := resiliency.NewExponentialBackoff(20*time.Millisecond, 100*time.Millisecond, 2*time.Second)
	attempt := 0
	logOutput, openErr := resiliency.RetryGet(context.Background(), b, func() (*os.File, error) {
		logName := fmt.Sprintf("%s-%s-%d.log", sessionId, name, os.Getpid())
		if attempt > 0 {
			logName = fmt.Sprintf("%s-%s-%d-%d.log", sessionId, name, os.Getpid(), attempt)
		}
		attempt++
		return os.OpenFile(
			filepath.Join(logFolder, logName),
			os.O_RDWR|os.O_CREATE|os.O_EXCL,
			osutil.PermissionOnlyOwnerReadWrite,
		)
	})
	if openErr != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", openErr)
	}

	logEncoder := zapcore.NewJSONEncoder(encoderConfig)
	return zapcore.NewCore(logEncoder, zapcore.AddSync(logOutput), zap.NewAtomicLevelAt(logLevel)), logOutput, nil
}

// Returns the folder to write diagnostics logs to, creating it if necessary.
func EnsureDiagnosticsLogsFolder() (string, error) {
	logFolder := osutil.EnvVarStringWithDefault(CSHARP_LS_DIAGNOSTICS_LOG_FOLDER, defaultLogPath)

	info, statErr := os.Stat(logFolder)
	switch {
	case errors.Is(statErr, fs.ErrNotExist):
		if mkdirErr := os.MkdirAll(logFolder, osutil.PermissionOnlyOwnerReadWriteSetCurrent); mkdirErr != nil {
			return "", fmt.Errorf("failed to create the diagnostic log folder '%s': %w", logFolder, mkdirErr)
		}
	case statErr != nil:
		return "", fmt.Errorf("failed to verify the existence of the diagnostic log folder '%s': %w", logFolder, statErr)
	case !info.IsDir():
		return "", fmt.Errorf("'%s' is not a directory and cannot be used as a log folder", logFolder)
	}

	return logFolder, nil
}

var errDiagnosticsLogNotEnabled = errors.New("diagnostics log not enabled")

func GetDiagnosticsLogLevel() (zapcore.Level, error) {
	diagnosticsLogLevel, found := os.LookupEnv(CSHARP_LS_DIAGNOSTICS_LOG_LEVEL)
	if !found || diagnosticsLogLevel == "" {
		return zapcore.InvalidLevel, errDiagnosticsLogNotEnabled
	}

	logLevel, parseErr := StringToLevel(diagnosticsLogLevel, zapcore.ErrorLevel)
	if parseErr != nil {
		return zapcore.InvalidLevel, fmt.Errorf("failed to parse diagnostics log level: %w", parseErr)
	}

	return logLevel, nil
}

func SessionId() string {
	return sessionId
}

// SessionEnv returns the environment variable assignment that makes child processes
// log under the same session.
func SessionEnv() string {
	return fmt.Sprintf("%s=%s", CSHARP_LS_SESSION_ID, SessionId())
}

func init() {
	if setSessionId, found := os.LookupEnv(CSHARP_LS_SESSION_ID); found && setSessionId != "" {
		sessionId = setSessionId
	} else {
		sessionId = uuid.NewString()
	}
}
