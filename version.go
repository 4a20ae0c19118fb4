// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "golang.org/x/mod/semver"

// EngineVersion is the running engine's semantic version, stamped into
// every precompiled chunk header written by dump (chunk.go) and checked
// against on load.
const EngineVersion = "v0.1.0"

// MinCompatibleVersion is the oldest chunk-producing engine version this
// build still accepts (spec §4.9 "Chunk": the loader must refuse
// incompatible formats rather than silently misinterpret bytes).
const MinCompatibleVersion = "v0.1.0"

// versionCompatible reports whether a chunk stamped with producedBy may be
// loaded by this engine: same major version, not newer than the running
// engine (a chunk from the future may use bytecode this engine doesn't
// understand yet), and not older than MinCompatibleVersion.
func versionCompatible(producedBy string) bool {
	if !semver.IsValid(producedBy) {
		return false
	}
	if semver.Major(producedBy) != semver.Major(EngineVersion) {
		return false
	}
	if semver.Compare(producedBy, EngineVersion) > 0 {
		return false
	}
	if semver.Compare(producedBy, MinCompatibleVersion) < 0 {
		return false
	}
	return true
}
