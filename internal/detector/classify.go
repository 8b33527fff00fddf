package detector

import (
	"net/http"
	"stickerwatch/internal/catalog"
)

// classify interprets a lookup, in priority order: transport failures, a 200 with ok=true,
// a 404 or ok=false, anything else.
func classify(res catalog.Response, err error) CheckResult {
	if err != nil {
		return TransientError
	}

	found, decoded := catalog.DecodeLookup(res.Body)
	if res.StatusCode == http.StatusOK && decoded && found {
		return Found
	}
	if res.StatusCode == http.StatusNotFound || (decoded && !found) {
		return NotFound
	}
	return TransientError
}
