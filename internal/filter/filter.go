package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/logger"
)

// Rejection reasons, one per check, in evaluation order.
const (
	ReasonLowKarma    = "low_karma"
	ReasonSportsBet   = "sports_bet"
	ReasonNoText      = "no_text"
	ReasonNoTicker    = "no_ticker"
	ReasonFilterError = "filter_error"
)

// sportsLexicon covers league names, sportsbook brands and bet-slip
// vocabulary. A single match rejects the post.
var sportsLexicon = []string{
	// Leagues and events
	"nfl", "nba", "mlb", "nhl", "mls", "ufc", "ncaa",
	"premier league", "la liga", "bundesliga", "serie a", "ligue 1",
	"champions league", "europa league", "super bowl", "march madness",
	"world cup", "playoffs", "stanley cup", "nba finals",
	// Betting terminology
	"parlay", "moneyline", "point spread", "over/under", "over under",
	"handicap", "teaser", "prop bet", "futures bet", "live bet",
	"draftkings", "fanduel", "pointsbet", "betmgm", "caesars sportsbook",
	"bet365", "barstool sportsbook", "wynn bet", "fanatics betting",
	"fantasy football", "fantasy basketball", "fantasy baseball",
	"daily fantasy", "dfs", "sports betting",
	// Generic sports signals
	"quarterback", "touchdown", "home run", "slam dunk", "hat trick",
	"mvp award", "first round pick", "draft pick",
}

// cryptoNames lets common coin names count as tradable instruments even
// without a cashtag.
var cryptoNames = map[string]bool{
	"bitcoin": true, "btc": true, "ethereum": true, "eth": true,
	"solana": true, "sol": true, "dogecoin": true, "doge": true,
	"cardano": true, "ada": true, "ripple": true, "xrp": true,
	"avalanche": true, "avax": true, "polkadot": true, "dot": true,
	"chainlink": true, "link": true, "litecoin": true, "ltc": true,
	"uniswap": true, "uni": true, "polygon": true, "matic": true,
	"shiba": true, "shib": true, "pepe": true, "bnb": true,
	"tron": true, "trx": true, "near": true, "fantom": true, "ftm": true,
	"injective": true, "inj": true, "arbitrum": true, "arb": true,
	"optimism": true, "op": true,
}

// tickerStopWords are all-caps words that look like tickers but aren't.
var tickerStopWords = map[string]bool{
	"I": true, "A": true, "AN": true, "THE": true, "AND": true, "OR": true,
	"BUT": true, "FOR": true, "NOR": true, "SO": true, "YET": true,
	"AT": true, "BY": true, "IN": true, "OF": true, "ON": true, "TO": true,
	"UP": true, "AS": true, "IS": true, "IT": true, "BE": true, "DO": true,
	"GO": true, "IF": true, "NO": true, "MY": true, "HE": true, "ME": true,
	"WE": true, "US": true, "AM": true, "VS": true, "TV": true, "PC": true,
	"OK": true, "AI": true, "HQ": true, "DD": true, "TL": true, "DR": true,
	"IMO": true, "LOL": true, "OMG": true, "WTF": true, "CEO": true,
	"CFO": true, "COO": true, "CTO": true, "SEC": true, "FED": true,
	"IPO": true, "YOLO": true, "FOMO": true, "EDIT": true, "USA": true,
}

var (
	cashtagRe = regexp.MustCompile(`\$[A-Z]{1,5}\b`)
	tickerRe  = regexp.MustCompile(`\$?[A-Z]{1,5}\b`)
	wordRe    = regexp.MustCompile(`[a-z0-9/]+`)
)

// imageExtensions mark link posts that point at a bare image (memes).
var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".svg",
}

// Result is the filter verdict for one post.
type Result struct {
	Pass   bool
	Reason string
}

// Config holds the static thresholds the filter evaluates against.
type Config struct {
	MinAuthorKarma int
	MinBodyLength  int
}

// Filter admits or rejects a raw post before the costly interpreter call.
// It is a pure function of the post and this configuration: no external
// calls, no state.
type Filter struct {
	cfg    Config
	logger *logger.Logger
}

// New creates a new post filter
func New(cfg Config, log *logger.Logger) *Filter {
	if cfg.MinBodyLength == 0 {
		cfg.MinBodyLength = 20
	}
	return &Filter{cfg: cfg, logger: log}
}

// Admit runs all checks in order; the first failing check wins. Any internal
// panic is converted into a conservative rejection (fail-closed): a filter
// bug must never promote a post into a trade.
func (f *Filter) Admit(post *contracts.Post) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithField("post_id", post.ID).
				WithField("panic", fmt.Sprint(r)).
				Error("Filter panicked, rejecting post")
			result = Result{Pass: false, Reason: ReasonFilterError}
		}
	}()

	checks := []func(*contracts.Post) (bool, string){
		f.checkKarma,
		f.checkSports,
		f.checkText,
		f.checkTicker,
	}

	for _, check := range checks {
		if ok, reason := check(post); !ok {
			return Result{Pass: false, Reason: reason}
		}
	}

	return Result{Pass: true}
}

// checkKarma rejects authors below the configured karma floor. Missing
// karma passes: absent data never blocks a post on its own.
func (f *Filter) checkKarma(post *contracts.Post) (bool, string) {
	if post.AuthorKarma == nil {
		return true, ""
	}
	if *post.AuthorKarma < f.cfg.MinAuthorKarma {
		return false, ReasonLowKarma
	}
	return true, ""
}

// checkSports rejects posts matching the sports-betting lexicon.
func (f *Filter) checkSports(post *contracts.Post) (bool, string) {
	combined := strings.ToLower(post.Text())
	words := make(map[string]bool)
	for _, w := range wordRe.FindAllString(combined, -1) {
		words[w] = true
	}

	for _, keyword := range sportsLexicon {
		if strings.Contains(keyword, " ") || strings.Contains(keyword, "/") {
			if strings.Contains(combined, keyword) {
				return false, ReasonSportsBet
			}
		} else if words[keyword] {
			return false, ReasonSportsBet
		}
	}
	return true, ""
}

// checkText rejects image-only link posts and self posts with no real body.
// A short body is tolerated when the title itself names an instrument.
func (f *Filter) checkText(post *contracts.Post) (bool, string) {
	body := strings.TrimSpace(post.Body)

	if !post.IsSelf {
		urlLower := strings.ToLower(post.URL)
		for _, ext := range imageExtensions {
			if strings.HasSuffix(urlLower, ext) && body == "" {
				return false, ReasonNoText
			}
		}
		return true, ""
	}

	if len(body) < f.cfg.MinBodyLength && !hasInstrument(post.Title) {
		return false, ReasonNoText
	}
	return true, ""
}

// checkTicker rejects posts with no identifiable financial instrument.
func (f *Filter) checkTicker(post *contracts.Post) (bool, string) {
	if !hasInstrument(post.Text()) {
		return false, ReasonNoTicker
	}
	return true, ""
}

// hasInstrument reports whether the text contains a recognisable
// instrument: a $TICKER cashtag, a bare all-caps ticker that is not a
// stop-word, or a known crypto name.
func hasInstrument(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range wordRe.FindAllString(lower, -1) {
		if cryptoNames[w] {
			return true
		}
	}

	if cashtagRe.MatchString(text) {
		return true
	}

	for _, match := range tickerRe.FindAllString(text, -1) {
		word := strings.TrimPrefix(match, "$")
		if len(word) >= 2 && !tickerStopWords[word] {
			return true
		}
	}

	return false
}
