// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

// StatusInfo is the presentation and progress metadata of one status code.
type StatusInfo struct {
	Code     StatusCode
	Label    string
	Icon     string
	Phase    string
	Subtitle string
	// Progress is the progress target in [0,100]. HasProgress is false for
	// statuses that leave the target unchanged.
	Progress    int
	HasProgress bool
}

// DefaultFailureReason is shown when an ERROR event carries no message.
const DefaultFailureReason = "an error occurred"

var catalog = map[StatusCode]StatusInfo{
	StatusConnecting: {
		Code: StatusConnecting, Label: "Connecting", Icon: "🔗",
		Phase: "ESTABLISHING LINK", Subtitle: "Contacting mission control...",
		Progress: 10, HasProgress: true,
	},
	StatusPreparing: {
		Code: StatusPreparing, Label: "Preparing data", Icon: "📦",
		Phase: "FUELING", Subtitle: "Loading input into the system...",
		Progress: 20, HasProgress: true,
	},
	StatusReadingFile: {
		Code: StatusReadingFile, Label: "Reading file", Icon: "📄",
		Phase: "DOCUMENT SCAN", Subtitle: "Scanning and extracting content...",
		Progress: 30, HasProgress: true,
	},
	StatusLoadingWeb: {
		Code: StatusLoadingWeb, Label: "Loading web page", Icon: "🌐",
		Phase: "DATA COLLECTION", Subtitle: "Fetching the web page...",
		Progress: 30, HasProgress: true,
	},
	StatusExtractingText: {
		Code: StatusExtractingText, Label: "Extracting text", Icon: "📝",
		Phase: "CONTENT PROCESSING", Subtitle: "Normalizing extracted text...",
		Progress: 45, HasProgress: true,
	},
	StatusProcessing: {
		Code: StatusProcessing, Label: "Generating", Icon: "🤖",
		Phase: "FULL THRUST", Subtitle: "Building the mindmap structure...",
		Progress: 70, HasProgress: true,
	},
	StatusValidating: {
		Code: StatusValidating, Label: "Validating format", Icon: "✅",
		Phase: "SYSTEMS CHECK", Subtitle: "Verifying and tuning the result...",
		Progress: 85, HasProgress: true,
	},
	StatusRetry: {
		Code: StatusRetry, Label: "Retrying", Icon: "🔄",
		Phase: "RE-IGNITION", Subtitle: "Adjusting course and trying again...",
		Progress: 75, HasProgress: true,
	},
	StatusSuccess: {
		Code: StatusSuccess, Label: "Complete", Icon: "🎉",
		Phase: "DESTINATION REACHED", Subtitle: "The mindmap is ready!",
		Progress: 100, HasProgress: true,
	},
	StatusError: {
		Code: StatusError, Label: "Error", Icon: "❌",
		Phase: "MISSION FAILED", Subtitle: "Something went wrong",
	},
}

// Lookup returns the catalog entry for a status code.
func Lookup(code StatusCode) (StatusInfo, bool) {
	info, ok := catalog[code]
	return info, ok
}

// Describe returns the catalog entry for code, or a generic entry labelled
// with the raw code when it is unknown.
func Describe(code StatusCode) StatusInfo {
	if info, ok := catalog[code]; ok {
		return info
	}
	return StatusInfo{Code: code, Label: string(code), Icon: "📌"}
}
