package probe

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
)

// Body markers of an HLS/M3U playlist.
var markers = [][]byte{[]byte("#EXTM3U"), []byte("#EXT-X-STREAM-INF")}

// Classify maps a probe response (or transport error) to an Outcome.
//
// Rules, first match wins:
//  1. err != nil: GeoBlocked for a timeout, Dead otherwise. Treating a
//     timeout as regional filtering is a heuristic, not a certainty.
//  2. 401, 403 or 451: GeoBlocked, body ignored.
//  3. any status other than 200: Dead.
//  4. 200 with a playlist marker in the body: Alive.
//  5. 200 without a marker: Dead.
func Classify(status int, body []byte, err error) Outcome {
	if err != nil {
		if IsTimeout(err) {
			return GeoBlocked
		}
		return Dead
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
		return GeoBlocked
	case http.StatusOK:
	default:
		return Dead
	}
	for _, m := range markers {
		if bytes.Contains(body, m) {
			return Alive
		}
	}
	return Dead
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
