// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package flow

// ErrorCode is a login failure code surfaced to clients on the failure
// redirect as `error_code`.
type ErrorCode string

// Login failure codes
const (
	// CodeGenericIdP is any IdP-signalled error without a specific mapping.
	CodeGenericIdP ErrorCode = "E0"

	// CodeUserAborted is the user cancelling the flow at the IdP.
	CodeUserAborted ErrorCode = "E1"

	// CodeTermsDeclined is the user declining the terms and conditions.
	CodeTermsDeclined ErrorCode = "E4"

	// CodeTokenExchange is a failed or unverifiable IdP code exchange.
	CodeTokenExchange ErrorCode = "E505"
)

// errorMessages are the human-readable texts surfaced alongside the codes.
var errorMessages = map[ErrorCode]string{
	CodeGenericIdP:    "Unknown error from Identity Provider",
	CodeUserAborted:   "User interrupted login flow",
	CodeTermsDeclined: "Terms and conditions were not accepted",
	CodeTokenExchange: "Failed to fetch token from Identity Provider",
}

// Message returns the human-readable text for the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return errorMessages[CodeGenericIdP]
}

// MapIdPError maps the error parameters of an IdP callback to a failure
// code. Returns "" when the callback carries no error.
func MapIdPError(errorParam, errorDescription string) ErrorCode {
	if errorParam == "" {
		return ""
	}
	switch errorDescription {
	case "user_aborted", "mitid_user_aborted":
		return CodeUserAborted
	default:
		return CodeGenericIdP
	}
}
