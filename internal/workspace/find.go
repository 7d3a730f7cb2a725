/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package workspace locates solution and project files and converts between paths and URIs.
package workspace

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// FindFiles lazily enumerates the files under root whose extension (without the dot) equals
// extension. Directories are walked in lexical order. Entries that cannot be read are skipped.
// Stopping the iteration stops the walk.
func FindFiles(root string, extension string) iter.Seq[string] {
	suffix := "." + extension

	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}

			if d.IsDir() || filepath.Ext(path) != suffix || !isFile(path, d) {
				return nil
			}

			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func isFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}

	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}

	info, statErr := os.Stat(path)
	return statErr == nil && info.Mode().IsRegular()
}
