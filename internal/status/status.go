// Package status derives the user-facing connectivity state of a tracked
// device from raw, possibly stale telemetry.
//
// Derivation is a pure function of its inputs. It keeps no memory of a prior
// state; every telemetry read re-evaluates from scratch so a stale lamp can
// never stick.
package status

import "math"

// State is the connectivity state of the device.
type State string

const (
	// Offline means no contact at all, or the last contact is too old.
	Offline State = "offline"
	// NoFix means the device is reachable but has no usable GPS position.
	NoFix State = "no_fix"
	// Online means recent contact with a recent valid fix.
	Online State = "online"
)

// Headline labels as shown to the operator.
const (
	LabelOnline  = "Online"
	LabelOffline = "No connection"
	LabelNoFix   = "Error: No GPS fix available"
	LabelStolen  = "STOLEN"
)

// Thresholds holds the two freshness windows, in milliseconds.
// StaleFix must be >= StaleUpdate: a device can be in contact without a fix,
// but never the other way around.
type Thresholds struct {
	StaleUpdate int64
	StaleFix    int64
}

// DefaultThresholds matches the deployed configuration: a device counts as
// online for one minute after its last contact and a fix stays usable for two.
var DefaultThresholds = Thresholds{
	StaleUpdate: 60_000,
	StaleFix:    120_000,
}

// Input carries everything derivation looks at. Timestamps are epoch
// milliseconds; a zero timestamp means "never seen".
type Input struct {
	LastUpdate int64 // latest contact of any kind
	FixTime    int64 // timestamp of the latest attempted fix
	Lat, Lon   float64
	Stolen     bool
	Now        int64
}

// Snapshot is the derived presentation state. State drives the lamp
// indicator; Label is the headline text. When Alert is set the label is
// forced to LabelStolen while State keeps reflecting connectivity.
type Snapshot struct {
	State State
	Label string
	Alert bool
}

// ValidFix reports whether a coordinate pair is a usable GPS position:
// both values finite and not both zero. (0,0) is the null-island reading a
// receiver emits before its first fix.
func ValidFix(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat != 0 || lon != 0
}

// Derive evaluates the connectivity state for the given inputs.
func Derive(in Input, th Thresholds) Snapshot {
	state := connectivity(in, th)

	snap := Snapshot{State: state}
	switch state {
	case Online:
		snap.Label = LabelOnline
	case NoFix:
		snap.Label = LabelNoFix
	default:
		snap.Label = LabelOffline
	}

	if in.Stolen {
		snap.Alert = true
		snap.Label = LabelStolen
	}
	return snap
}

func connectivity(in Input, th Thresholds) State {
	if in.LastUpdate == 0 {
		return Offline
	}

	updateAge := in.Now - in.LastUpdate

	fixUsable := ValidFix(in.Lat, in.Lon) && in.FixTime != 0 && in.Now-in.FixTime <= th.StaleFix
	if !fixUsable && updateAge <= th.StaleUpdate {
		return NoFix
	}

	if updateAge > th.StaleUpdate {
		return Offline
	}
	return Online
}
