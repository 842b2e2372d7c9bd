package privacy

import (
	"fmt"
	"net/url"
	"strings"
)

const tweetIntentURL = "https://twitter.com/intent/tweet"

// ShareText is the message posted by the share action.
func ShareText(score int, pageURL string) string {
	return fmt.Sprintf("My Zcash Privacy Score: %d%% shielded! Check yours at %s #ZViewer @Zcash @Gemini", score, pageURL)
}

// ShareURL returns the tweet intent URL carrying ShareText.
func ShareURL(score int, pageURL string) string {
	return tweetIntentURL + "?text=" + encodeURIComponent(ShareText(score, pageURL))
}

// componentUnescaper restores the characters encodeURIComponent leaves alone
// but url.QueryEscape encodes.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent escapes s the way browsers do for a URI component.
func encodeURIComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
