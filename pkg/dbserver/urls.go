package dbserver

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildURL joins route parts onto the server base URL, trimming stray slashes
// from each part.
func BuildURL(baseURL string, parts ...any) string {
	segs := make([]string, 0, len(parts)+1)
	segs = append(segs, strings.TrimSuffix(baseURL, "/"))
	for _, p := range parts {
		segs = append(segs, strings.Trim(fmt.Sprint(p), "/"))
	}
	return strings.Join(segs, "/")
}

// IsAliveURL is the liveness route.
func IsAliveURL(baseURL string) string {
	return BuildURL(baseURL, "is-alive")
}

// SnapshotTimesURL lists snapshot epoch-ms values within [start, end].
func SnapshotTimesURL(baseURL, camera string, startEMS, endEMS int64) string {
	return BuildURL(baseURL, camera, "snapshots", "get-ems-list", "by-time-range",
		strconv.FormatInt(startEMS, 10), strconv.FormatInt(endEMS, 10))
}

// SnapshotImageURL downloads one snapshot image.
func SnapshotImageURL(baseURL, camera string, ems int64) string {
	return BuildURL(baseURL, camera, "snapshots", "get-one-image", "by-ems", strconv.FormatInt(ems, 10))
}

// BackgroundImageURL downloads the background active at the target time.
func BackgroundImageURL(baseURL, camera string, targetEMS int64) string {
	return BuildURL(baseURL, camera, "backgrounds", "get-active-image", "by-time-target",
		strconv.FormatInt(targetEMS, 10))
}

// CameraNamesURL lists every camera known to the server.
func CameraNamesURL(baseURL string) string {
	return BuildURL(baseURL, "get-all-camera-names")
}

// DeleteURL removes all realtime data for a camera older than the cutoff.
func DeleteURL(baseURL, camera string, cutoffEMS int64) string {
	return BuildURL(baseURL, camera, "delete", "all-realtime", "by-cutoff", strconv.FormatInt(cutoffEMS, 10))
}
