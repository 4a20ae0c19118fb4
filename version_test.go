// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import "testing"

func TestVersionCompatibleSameVersion(t *testing.T) {
	if !versionCompatible(EngineVersion) {
		t.Fatalf("a chunk stamped with the running engine's own version should be compatible")
	}
}

func TestVersionCompatibleInvalidSemver(t *testing.T) {
	if versionCompatible("not-a-version") {
		t.Fatal("an invalid semver string should never be reported compatible")
	}
}

func TestVersionCompatibleDifferentMajor(t *testing.T) {
	if versionCompatible("v2.0.0") {
		t.Fatal("a chunk from a different major version should not be compatible")
	}
}

func TestVersionCompatibleFromTheFuture(t *testing.T) {
	if versionCompatible("v0.99.0") {
		t.Fatal("a chunk newer than the running engine should not be compatible")
	}
}

func TestVersionCompatibleBelowMinimum(t *testing.T) {
	if versionCompatible("v0.0.1") {
		t.Fatal("a chunk older than MinCompatibleVersion should not be compatible")
	}
}
