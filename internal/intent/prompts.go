package intent

import (
	"fmt"
	"strings"
)

// intentDescriptions drives the classification prompt. One line per
// taxonomy tag; the model is told to answer with exactly one of them.
var intentDescriptions = map[Intent]string{
	IntentGeneralChat:      "General conversation, greetings, opinions, anything not covered below.",
	IntentCryptoInfo:       "Current price or market data for one or more named coins.",
	IntentTokenAnalysis:    "Deeper analysis, outlook or news context for a single token.",
	IntentWhereToBuy:       "Where a token can be bought or which exchange lists it.",
	IntentPremarketScan:    "Scan for early-stage or pre-market opportunities.",
	IntentEduLesson:        "Explain a crypto concept or term (what is staking, DAO, etc.).",
	IntentSetupAlert:       "Create a price alert for a coin at a target level.",
	IntentManageAlerts:     "List or delete existing price alerts.",
	IntentTrackCoin:        "Add a coin to the user's tracked portfolio.",
	IntentUntrackCoin:      "Remove a coin from the user's tracked portfolio.",
	IntentPortfolioSummary: "Show the user's tracked portfolio with prices.",
	IntentSubscription:     "Questions about the paid subscription, its status or renewal.",
	IntentBotHelp:          "What the assistant can do, how to use it.",
	IntentChangeLanguage:   "Switch the assistant's reply language (English or Russian).",
	IntentUnsupported:      "Anything that fits no category above.",
}

// extractionKeys is the static per-intent instruction table: which
// single key the extractor asks for, and the instruction line fed to
// the model. Intents absent from the table extract nothing.
var extractionKeys = map[Intent]extractionRule{
	IntentCryptoInfo:     {key: "symbols", rule: `Extract every token symbol into the key "symbols", comma separated. Example: "price of btc and eth" -> symbols:BTC,ETH`},
	IntentTokenAnalysis:  {key: "topic", rule: `Extract the token name or symbol into the key "topic". Example: "news about Solana" -> topic:Solana`},
	IntentWhereToBuy:     {key: "symbol", rule: `Extract the token symbol into the key "symbol". Example: "where to buy dogecoin" -> symbol:DOGE`},
	IntentEduLesson:      {key: "topic", rule: `Extract the lesson topic into the key "topic". Example: "what is a dao" -> topic:DAO`},
	IntentSetupAlert:     {key: "alert_data", rule: `Extract SYMBOL:PRICE:DIRECTION into the key "alert_data". If no direction is given use "above". Example: "alert me when btc hits 120000" -> alert_data:BTC:120000:above`},
	IntentManageAlerts:   {key: "action", rule: `Extract "list" or "delete:SYMBOL" into the key "action". Example: "remove my eth alert" -> action:delete:ETH. Default to action:list.`},
	IntentTrackCoin:      {key: "symbol", rule: `Extract the token symbol into the key "symbol". Example: "add ripple" -> symbol:XRP`},
	IntentUntrackCoin:    {key: "symbol", rule: `Extract the token symbol into the key "symbol". Example: "drop cardano" -> symbol:ADA`},
	IntentChangeLanguage: {key: "language", rule: `Extract the requested language code, "en" or "ru", into the key "language". Example: "switch to russian" -> language:ru`},
}

type extractionRule struct {
	key  string
	rule string
}

// DefaultKey is the key returned when an intent has no extraction rule
// or the model produced nothing extractable.
const DefaultKey = "payload"

func classifyPrompt(utterance string) string {
	var b strings.Builder
	b.WriteString("You are the routing brain of a crypto market assistant. ")
	b.WriteString("Read the user request and answer with EXACTLY ONE tag from the list below. ")
	b.WriteString("No punctuation, no explanation.\n\nAllowed tags:\n")
	for _, it := range All() {
		fmt.Fprintf(&b, "- %s: %s\n", it, intentDescriptions[it])
	}
	fmt.Fprintf(&b, "\nUser request: %q\n\nYour verdict (one tag):", utterance)
	return b.String()
}

func extractPrompt(it Intent, utterance string) string {
	var b strings.Builder
	b.WriteString("You are a data extractor for a crypto market assistant. ")
	b.WriteString("The intent of the request is already known; pull out the specific data it needs.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Answer STRICTLY in the form key:value.\n")
	b.WriteString("2. If the request carries no extractable data, answer payload: with an empty value.\n")
	b.WriteString("3. Strip spaces and currency signs from numbers, but otherwise keep the captured text as written.\n\n")
	fmt.Fprintf(&b, "Intent: %s\nUser request: %q\n\n", it, utterance)
	if r, ok := extractionKeys[it]; ok {
		fmt.Fprintf(&b, "Instruction: %s\n\n", r.rule)
	} else {
		b.WriteString("Instruction: this intent needs no parameters; answer payload: unless something obviously relevant is present.\n\n")
	}
	b.WriteString("Your answer (key:value):")
	return b.String()
}
