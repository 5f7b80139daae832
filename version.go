// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package sixlab

// Version is the release version, overridden at build time with -ldflags "-X".
var Version = "0.1.0"

// UserAgent identifies outbound requests to AI backends.
func UserAgent() string {
	return "sixlab-ai/" + Version
}
