package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrNoWebAppData = errors.New("tgWebAppData not found in web view url")

const webAppDataKey = "tgWebAppData="

// extractWebAppData pulls `tgWebAppData` out of a web view url fragment.
//
// The value is taken from the raw fragment and percent-decoded once, decoding it with
// url.ParseQuery would also decode the nested values and break the signature the catalog checks.
func extractWebAppData(webViewUrl string) (string, error) {
	_, fragment, found := strings.Cut(webViewUrl, "#")
	if !found {
		return "", fmt.Errorf("%w: url has no fragment", ErrNoWebAppData)
	}

	for _, part := range strings.Split(fragment, "&") {
		encoded, ok := strings.CutPrefix(part, webAppDataKey)
		if !ok {
			continue
		}
		decoded, err := url.PathUnescape(encoded)
		if err != nil {
			return "", fmt.Errorf("decode tgWebAppData: %w", err)
		}
		if decoded == "" {
			return "", fmt.Errorf("%w: empty value", ErrNoWebAppData)
		}
		return decoded, nil
	}
	return "", ErrNoWebAppData
}
