package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/obolbot/obol/internal/llm"
)

// scriptedProvider returns canned responses for matching prompts.
type scriptedProvider struct {
	name    string
	respond func(prompt string) (string, error)
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Infer(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	return s.respond(prompt)
}

func fixedProvider(text string) *scriptedProvider {
	return &scriptedProvider{name: "fixed", respond: func(string) (string, error) { return text, nil }}
}

func failingProvider(err error) *scriptedProvider {
	return &scriptedProvider{name: "failing", respond: func(string) (string, error) { return "", err }}
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Intent
	}{
		{"CRYPTO_INFO", IntentCryptoInfo},
		{"  crypto_info \n", IntentCryptoInfo},
		{"`SETUP_ALERT`", IntentSetupAlert},
		{"\"BOT_HELP\".", IntentBotHelp},
		{"GENERAL_CHAT!", IntentGeneralChat},
		{"SOMETHING_ELSE", IntentUnsupported},
		{"", IntentUnsupported},
		{"The intent is CRYPTO_INFO", IntentUnsupported},
	}
	for _, tt := range tests {
		if got := Parse(tt.raw); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestAllTagsValid(t *testing.T) {
	tags := All()
	if len(tags) != 15 {
		t.Fatalf("taxonomy size = %d, want 15", len(tags))
	}
	seen := map[Intent]bool{}
	for _, it := range tags {
		if !it.Valid() {
			t.Errorf("%v reported invalid", it)
		}
		if seen[it] {
			t.Errorf("duplicate tag %v", it)
		}
		seen[it] = true
	}
	if tags[len(tags)-1] != IntentUnsupported {
		t.Error("catch-all must be last")
	}
}

func TestClassifyNormalizesOutput(t *testing.T) {
	pool := llm.NewPool(nil, fixedProvider(" crypto_info\n"))
	c := NewClassifier(pool, nil)
	if got := c.Classify(context.Background(), "price of btc?"); got != IntentCryptoInfo {
		t.Errorf("got %v, want CRYPTO_INFO", got)
	}
}

func TestClassifyDegradesOnFailure(t *testing.T) {
	pool := llm.NewPool(nil, failingProvider(errors.New("down")))
	c := NewClassifier(pool, nil)
	if got := c.Classify(context.Background(), "hello"); got != IntentUnsupported {
		t.Errorf("got %v, want UNSUPPORTED_INTENT", got)
	}
}

func TestClassifyDegradesUnconfigured(t *testing.T) {
	c := NewClassifier(llm.NewPool(nil), nil)
	if got := c.Classify(context.Background(), "hello"); got != IntentUnsupported {
		t.Errorf("got %v, want UNSUPPORTED_INTENT", got)
	}
}

func TestClassifyPromptListsEveryTag(t *testing.T) {
	var captured string
	p := &scriptedProvider{name: "cap", respond: func(prompt string) (string, error) {
		captured = prompt
		return "GENERAL_CHAT", nil
	}}
	NewClassifier(llm.NewPool(nil, p), nil).Classify(context.Background(), "hi")

	for _, it := range All() {
		if !strings.Contains(captured, string(it)) {
			t.Errorf("prompt missing tag %v", it)
		}
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		output string
		want   Payload
	}{
		{"symbols", IntentCryptoInfo, "symbols:BTC,ETH", Payload{"symbols", "BTC,ETH"}},
		{"alert", IntentSetupAlert, "alert_data:BTC:120000:above", Payload{"alert_data", "BTC:120000:above"}},
		{"empty payload", IntentSubscription, "payload:", Payload{"payload", ""}},
		{"whitespace", IntentTrackCoin, "  symbol: XRP \n", Payload{"symbol", "XRP"}},
		{"no colon", IntentEduLesson, "DAO", Payload{"payload", ""}},
		{"invented key fixed", IntentWhereToBuy, "coin:DOGE", Payload{"symbol", "DOGE"}},
		{"multiline keeps first", IntentTokenAnalysis, "topic:Solana\nextra junk", Payload{"topic", "Solana"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(llm.NewPool(nil, fixedProvider(tt.output)), nil)
			got := e.Extract(context.Background(), tt.intent, "whatever")
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Sentinel() {
				t.Error("data payload misreported as sentinel")
			}
		})
	}
}

func TestExtractSentinels(t *testing.T) {
	unconfigured := NewExtractor(llm.NewPool(nil), nil)
	p := unconfigured.Extract(context.Background(), IntentCryptoInfo, "price btc")
	if p.Value != SentinelUnconfigured || !p.Sentinel() {
		t.Errorf("unconfigured pool: got %+v", p)
	}

	broken := NewExtractor(llm.NewPool(nil, failingProvider(errors.New("503"))), nil)
	p = broken.Extract(context.Background(), IntentCryptoInfo, "price btc")
	if p.Value != SentinelTransient || !p.Sentinel() {
		t.Errorf("failing pool: got %+v", p)
	}
}

func TestExtractFallbackOrder(t *testing.T) {
	primary := failingProvider(errors.New("quota"))
	secondary := fixedProvider("symbols:SOL")
	e := NewExtractor(llm.NewPool(nil, primary, secondary), nil)

	got := e.Extract(context.Background(), IntentCryptoInfo, "sol price")
	if got.Value != "SOL" {
		t.Errorf("got %+v, want value SOL from secondary", got)
	}
}
