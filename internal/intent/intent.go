// Package intent implements the two-stage understanding pipeline: a
// closed-taxonomy classifier followed by a per-intent entity extractor.
package intent

import "strings"

// Intent is a closed taxonomy tag classifying the purpose of an
// utterance. The zero value is not valid; unrecognized input maps to
// [IntentUnsupported].
type Intent string

const (
	IntentGeneralChat      Intent = "GENERAL_CHAT"
	IntentCryptoInfo       Intent = "CRYPTO_INFO"
	IntentTokenAnalysis    Intent = "TOKEN_ANALYSIS"
	IntentWhereToBuy       Intent = "WHERE_TO_BUY"
	IntentPremarketScan    Intent = "PREMARKET_SCAN"
	IntentEduLesson        Intent = "EDU_LESSON"
	IntentSetupAlert       Intent = "SETUP_ALERT"
	IntentManageAlerts     Intent = "MANAGE_ALERTS"
	IntentTrackCoin        Intent = "TRACK_COIN"
	IntentUntrackCoin      Intent = "UNTRACK_COIN"
	IntentPortfolioSummary Intent = "PORTFOLIO_SUMMARY"
	IntentSubscription     Intent = "SUBSCRIPTION"
	IntentBotHelp          Intent = "BOT_HELP"
	IntentChangeLanguage   Intent = "CHANGE_LANGUAGE"
	IntentUnsupported      Intent = "UNSUPPORTED_INTENT"
)

// All returns every taxonomy tag, catch-all last.
func All() []Intent {
	return []Intent{
		IntentGeneralChat,
		IntentCryptoInfo,
		IntentTokenAnalysis,
		IntentWhereToBuy,
		IntentPremarketScan,
		IntentEduLesson,
		IntentSetupAlert,
		IntentManageAlerts,
		IntentTrackCoin,
		IntentUntrackCoin,
		IntentPortfolioSummary,
		IntentSubscription,
		IntentBotHelp,
		IntentChangeLanguage,
		IntentUnsupported,
	}
}

// Parse normalizes raw model output to a taxonomy tag. Whitespace,
// surrounding punctuation and case are forgiven; anything that still
// does not match a known tag degrades to [IntentUnsupported].
func Parse(raw string) Intent {
	tag := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), "`\"'.,!*"))
	for _, it := range All() {
		if string(it) == tag {
			return it
		}
	}
	return IntentUnsupported
}

// String implements fmt.Stringer.
func (i Intent) String() string { return string(i) }

// Valid reports whether i is a known taxonomy tag.
func (i Intent) Valid() bool {
	for _, it := range All() {
		if it == i {
			return true
		}
	}
	return false
}
