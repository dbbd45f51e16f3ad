package types

import "errors"

// User-facing texts for the report failures. Callers pick one with
// UserMessage; the wording keeps "no data right now" apart from "you have not
// registered a location yet".
const (
	MsgInfoUnavailable    = "Weather information for your farm is not currently available."
	MsgLocationMissing    = "Your farm's location has not been registered yet. Please register it before requesting a report."
	MsgFarmDataIncomplete = "Your farm registration is incomplete. Please complete it before requesting a report."
	MsgTryAgainLater      = "The weather service did not respond in time. Please try again later."
)

// UserMessage maps an error from the report pipeline to the text shown to the
// farmer. It returns the generic unavailable text for anything it does not
// recognize.
func UserMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return MsgInfoUnavailable
	}
	switch appErr.Code {
	case ErrCodeIncompleteFarmData:
		if missing, ok := appErr.Details["missing"].(string); ok && missing == string(StepLocation) {
			return MsgLocationMissing
		}
		return MsgFarmDataIncomplete
	case ErrCodeUpstreamTimeout:
		return MsgTryAgainLater
	default:
		return MsgInfoUnavailable
	}
}
