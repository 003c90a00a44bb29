package playback

import "fmt"

// Phase is the user-facing playback phase. It is derived from engine state
// and is never itself a source of truth.
type Phase string

const (
	PhaseInitializing       Phase = "initializing"
	PhaseWaitingForManifest Phase = "waiting_for_manifest"
	PhaseProbingManifest    Phase = "probing_manifest"
	PhaseAttaching          Phase = "attaching"
	PhaseLive               Phase = "live"
	PhaseRecovering         Phase = "recovering"
	PhaseStopped            Phase = "stopped"
)

// DisplayStatus is the phase plus a human-readable message for the page.
type DisplayStatus struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

// statusInput is everything the projection needs. Kept as a value type so
// the projection stays a pure function over engine state.
type statusInput struct {
	mode           mode
	probeSuccesses int
	probeRequired  int
	recoveryReason string
	backendRunning bool
	backendError   string
	userStopped    bool
}

// projectStatus maps engine state to a DisplayStatus.
//
// Phase transitions mirror the reconciliation lifecycle: partial probe
// successes update the "n/required" counter without leaving the probing
// phase, a probe failure falls back to the waiting message, and a fatal
// player error is surfaced as a recovering message until the session is
// live again.
func projectStatus(in statusInput) DisplayStatus {
	switch in.mode {
	case modeInitializing:
		return DisplayStatus{PhaseInitializing, "Initializing player"}
	case modeWaiting:
		msg := "Waiting for transcoder manifest"
		if in.backendError != "" {
			msg = fmt.Sprintf("Waiting for transcoder manifest (%s)", in.backendError)
		}
		return DisplayStatus{PhaseWaitingForManifest, msg}
	case modeProbing:
		if in.probeSuccesses > 0 {
			return DisplayStatus{PhaseProbingManifest,
				fmt.Sprintf("Manifest check %d/%d", in.probeSuccesses, in.probeRequired)}
		}
		if in.recoveryReason != "" {
			return DisplayStatus{PhaseProbingManifest,
				fmt.Sprintf("Recovering from playback error (%s)", in.recoveryReason)}
		}
		return DisplayStatus{PhaseProbingManifest, "Waiting for manifest to become available"}
	case modeAttaching:
		return DisplayStatus{PhaseAttaching, "Starting playback"}
	case modeLive:
		return DisplayStatus{PhaseLive, "Live"}
	case modeRecovering:
		reason := in.recoveryReason
		if reason == "" {
			reason = "network"
		}
		return DisplayStatus{PhaseRecovering,
			fmt.Sprintf("Recovering from playback error (%s)", reason)}
	case modeStopped:
		if in.userStopped {
			return DisplayStatus{PhaseStopped, "Playback stopped"}
		}
		if in.backendError != "" {
			return DisplayStatus{PhaseStopped,
				fmt.Sprintf("Transcoder offline (%s)", in.backendError)}
		}
		return DisplayStatus{PhaseStopped, "Transcoder offline"}
	}
	return DisplayStatus{PhaseInitializing, "Initializing player"}
}
