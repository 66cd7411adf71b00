// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "errors"

// Sentinel errors for the fatal error taxonomy of spec §7. Call sites wrap
// these with fmt.Errorf("%w: ...") to attach the file path, declaration
// name, or type kind the spec requires callers surface, following the same
// pattern the teacher uses for its own sentinel Err* values in helper.go.
var (
	// ErrConfigLoad covers a missing config file, a YAML parse error, or a
	// schema mismatch (spec §7 "Config load error").
	ErrConfigLoad = errors.New("winmd: config load error")

	// ErrParseFailed covers the C front-end rejecting a translation unit
	// (spec §7 "Parse error"). Fatal for the offending partition.
	ErrParseFailed = errors.New("winmd: parse error")

	// ErrExternalWinMDRead covers any failure reading a type_import's
	// external .winmd (spec §7 "External winmd read failure").
	ErrExternalWinMDRead = errors.New("winmd: external winmd read error")

	// ErrOutputWrite covers a failure writing the final assembly bytes
	// (spec §7 "Output write failure").
	ErrOutputWrite = errors.New("winmd: output write error")
)
