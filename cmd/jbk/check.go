// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jbk-format/jbk/lib/content"
	"github.com/jbk-format/jbk/lib/jbk"
	"github.com/jbk-format/jbk/lib/manifest"
	"github.com/jbk-format/jbk/lib/pack"
)

// cmdCheck opens the file at path and verifies the integrity of every
// pack it can reach: the outer container (if any), the manifest, the
// directory pack, and every content pack the manifest names. A pack
// that resolves to missing is reported and skipped, not treated as a
// failure (spec §4.8's "absence is not fatal" rule extends to check);
// a pack whose check-tail digest fails to verify is.
func cmdCheck(logger *slog.Logger, args []string) int {
	path := firstPositional(args)
	if path == "" {
		fmt.Fprintln(os.Stderr, "error: check requires a file path")
		return 2
	}

	r, err := jbk.Open(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer r.Close()

	ok := true

	if c := r.Container(); c != nil {
		if err := c.CheckIntegrity(); err != nil {
			logger.Error("container integrity check failed", "error", err)
			ok = false
		} else if err := c.VerifyLocators(); err != nil {
			logger.Error("container locator table is inconsistent", "error", err)
			ok = false
		} else {
			logger.Info("container pack OK", "uuid", c.Header.UUID)
		}
	}

	if err := r.Manifest().CheckIntegrity(); err != nil {
		logger.Error("manifest integrity check failed", "error", err)
		ok = false
	} else {
		logger.Info("manifest pack OK", "uuid", r.Manifest().Header.UUID)
	}

	dp, err := r.Directory()
	if err != nil {
		logger.Error("directory pack could not be opened", "error", err)
		ok = false
	} else if err := dp.CheckIntegrity(); err != nil {
		logger.Error("directory pack integrity check failed", "error", err)
		ok = false
	} else {
		logger.Info("directory pack OK", "uuid", dp.Header.UUID,
			"entryStores", dp.EntryStoreCount(), "indexes", dp.IndexCount())
	}

	for _, info := range r.Manifest().AllPackInfos() {
		if info.PackKind != pack.KindContent {
			continue
		}
		if !checkContentPack(logger, r, info) {
			ok = false
		}
	}

	if !ok {
		return 1
	}
	return 0
}

// checkContentPack resolves and verifies one content pack named by
// the manifest, returning false only on an actual integrity or format
// failure — a pack that cannot be located is logged and treated as
// tolerated absence, not a check failure.
func checkContentPack(logger *slog.Logger, r *jbk.Reader, info manifest.PackInfo) bool {
	resolved, err := r.ResolvePack(info)
	if err != nil {
		logger.Error("content pack could not be resolved", "packId", info.PackID, "error", err)
		return false
	}
	rp, present := resolved.Get()
	if !present {
		logger.Warn("content pack missing", "packId", info.PackID, "uuid", info.UUID, "location", info.PackLocation)
		return true
	}

	cp, err := content.Open(rp.Region, nil)
	if err != nil {
		logger.Error("content pack could not be opened", "packId", info.PackID, "error", err)
		return false
	}
	if err := cp.CheckIntegrity(); err != nil {
		logger.Error("content pack integrity check failed", "packId", info.PackID, "error", err)
		return false
	}
	logger.Info("content pack OK", "packId", info.PackID, "uuid", cp.Header.UUID,
		"entries", cp.EntryCount(), "clusters", cp.ClusterCount())
	return true
}

// firstPositional returns the first argument that doesn't look like a
// flag.
func firstPositional(args []string) string {
	for _, arg := range args {
		if len(arg) == 0 || arg[0] != '-' {
			return arg
		}
	}
	return ""
}
