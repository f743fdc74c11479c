package checks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sourcewatch/sourcewatch/internal/config"
	"github.com/sourcewatch/sourcewatch/internal/differ"
	"github.com/sourcewatch/sourcewatch/internal/fetch"
	"github.com/sourcewatch/sourcewatch/internal/page"
)

// Kind identifies one of the six monitoring dimensions.
type Kind string

const (
	KindLink         Kind = "link"
	KindContent      Kind = "content"
	KindPaywall      Kind = "paywall"
	KindAvailability Kind = "availability"
	KindStructure    Kind = "structure"
	KindStaleness    Kind = "staleness"
)

// Kinds is the closed, ordered set of check kinds run for every page.
var Kinds = []Kind{
	KindLink,
	KindContent,
	KindPaywall,
	KindAvailability,
	KindStructure,
	KindStaleness,
}

// Status is the tri-state outcome of a single check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Result is one check observation: exactly one per (source, URL, kind) per
// run, never mutated after creation.
type Result struct {
	SourceKey string
	URL       string
	Kind      Kind
	Status    Status
	Detail    string
	CheckedAt time.Time
}

// maxRedirectHops is the redirect count beyond which a link is flagged.
const maxRedirectHops = 2

// paywallKeywords are the markup substrings that indicate access restriction.
var paywallKeywords = []string{
	"paywall", "subscribe", "subscription", "premium",
	"login-required", "access-denied", "members-only",
	"paid-content",
}

// Engine runs the six check strategies over configured sources.
type Engine struct {
	client *fetch.Client
	differ *differ.Differ
	now    func() time.Time // injectable for deterministic tests
}

// NewEngine returns an Engine using the given HTTP client and differ.
func NewEngine(client *fetch.Client, d *differ.Differ) *Engine {
	return &Engine{
		client: client,
		differ: d,
		now:    time.Now,
	}
}

// checkFunc is one check strategy. Strategies never return an error: every
// failure mode is folded into the Result's status and detail, so one failing
// check can never prevent the others from running.
type checkFunc func(ctx context.Context, src config.Source, url string, deep bool) Result

// table returns the dispatch table mapping each kind to its strategy.
// Running all checks for a page is a fold of RunCheck over Kinds.
func (e *Engine) table() map[Kind]checkFunc {
	return map[Kind]checkFunc{
		KindLink:         e.checkLink,
		KindContent:      e.checkContent,
		KindPaywall:      e.checkPaywall,
		KindAvailability: e.checkAvailability,
		KindStructure:    e.checkStructure,
		KindStaleness:    e.checkStaleness,
	}
}

// RunCheck runs one check kind against one page URL. A panicking strategy is
// isolated into an error result for its kind, so a single misbehaving check
// never takes down the rest of the run.
func (e *Engine) RunCheck(ctx context.Context, kind Kind, src config.Source, url string, deep bool) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = e.result(src, url, kind, StatusError, fmt.Sprintf("Check failed: %v", r))
		}
	}()
	return e.table()[kind](ctx, src, url, deep)
}

// result builds a timestamped Result.
func (e *Engine) result(src config.Source, url string, kind Kind, status Status, detail string) Result {
	return Result{
		SourceKey: src.Key,
		URL:       url,
		Kind:      kind,
		Status:    status,
		Detail:    detail,
		CheckedAt: e.now().UTC(),
	}
}

// --- link -------------------------------------------------------------------

// checkLink detects broken links (404/410), excessive redirects, and moved
// URLs via a HEAD request.
func (e *Engine) checkLink(ctx context.Context, src config.Source, url string, _ bool) Result {
	resp, err := e.client.Head(ctx, url)
	if err != nil {
		if fetch.IsTimeout(err) {
			return e.result(src, url, KindLink, StatusError, "Request timed out")
		}
		return e.result(src, url, KindLink, StatusError, fmt.Sprintf("Check failed: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return e.result(src, url, KindLink, StatusError,
			fmt.Sprintf("Link broken: HTTP %d", resp.StatusCode))

	case resp.RedirectHops > maxRedirectHops:
		return e.result(src, url, KindLink, StatusWarning,
			fmt.Sprintf("Excessive redirects: %d hops", resp.RedirectHops))

	case !fetch.SameURL(resp.FinalURL, url):
		return e.result(src, url, KindLink, StatusWarning,
			fmt.Sprintf("URL moved to: %s", resp.FinalURL))

	default:
		return e.result(src, url, KindLink, StatusOK, "Link is accessible")
	}
}

// --- availability -----------------------------------------------------------

// checkAvailability reports whether the page serves HTTP 200.
func (e *Engine) checkAvailability(ctx context.Context, src config.Source, url string, _ bool) Result {
	resp, err := e.client.Get(ctx, url)
	if err != nil {
		if fetch.IsTimeout(err) {
			return e.result(src, url, KindAvailability, StatusError,
				"Request timed out - page may be offline")
		}
		return e.result(src, url, KindAvailability, StatusError,
			fmt.Sprintf("Page is offline or unreachable: %v", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return e.result(src, url, KindAvailability, StatusError,
			fmt.Sprintf("Server error: HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusOK:
		return e.result(src, url, KindAvailability, StatusOK, "Page is available")
	default:
		return e.result(src, url, KindAvailability, StatusWarning,
			fmt.Sprintf("Unexpected status: HTTP %d", resp.StatusCode))
	}
}

// --- content ----------------------------------------------------------------

// checkContent fetches the page, strips script/style, and asks the differ
// whether the extracted text changed since the last snapshot.
func (e *Engine) checkContent(ctx context.Context, src config.Source, url string, deep bool) Result {
	resp, err := e.client.Get(ctx, url)
	if err != nil {
		return e.result(src, url, KindContent, StatusError,
			fmt.Sprintf("Failed to fetch content: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return e.result(src, url, KindContent, StatusError,
			fmt.Sprintf("Failed to fetch content: HTTP %d", resp.StatusCode))
	}

	doc, err := page.Parse(resp.Body)
	if err != nil {
		return e.result(src, url, KindContent, StatusError,
			fmt.Sprintf("Check failed: %v", err))
	}
	text := doc.Text()

	if deep {
		res, err := e.differ.DeepDiff(ctx, url, text)
		if err != nil {
			return e.result(src, url, KindContent, StatusError,
				fmt.Sprintf("Check failed: %v", err))
		}
		if res.Changed {
			return e.result(src, url, KindContent, StatusWarning,
				fmt.Sprintf("Content changed: %.1f%% of lines (+%d/-%d)",
					res.PctChanged, res.AddedLines, res.RemovedLines))
		}
		return e.result(src, url, KindContent, StatusOK, "Content unchanged")
	}

	res, err := e.differ.LightCheck(ctx, url, text)
	if err != nil {
		return e.result(src, url, KindContent, StatusError,
			fmt.Sprintf("Check failed: %v", err))
	}
	if res.Changed {
		return e.result(src, url, KindContent, StatusWarning,
			fmt.Sprintf("Content changed (previous: %s..., current: %s...)",
				shortHash(res.PreviousHash), shortHash(res.CurrentHash)))
	}
	return e.result(src, url, KindContent, StatusOK, "Content unchanged")
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// --- paywall ----------------------------------------------------------------

// checkPaywall scans the markup for access-restriction keywords and, when
// none are found, compares the extracted text length against the previous
// snapshot — a sudden halving suggests content moved behind a gate.
func (e *Engine) checkPaywall(ctx context.Context, src config.Source, url string, _ bool) Result {
	resp, err := e.client.Get(ctx, url)
	if err != nil {
		return e.result(src, url, KindPaywall, StatusError,
			fmt.Sprintf("Failed to fetch page: %v", err))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return e.result(src, url, KindPaywall, StatusError,
			fmt.Sprintf("Access denied: HTTP %d", resp.StatusCode))
	}

	markup := strings.ToLower(string(resp.Body))
	var found []string
	for _, kw := range paywallKeywords {
		if strings.Contains(markup, kw) {
			found = append(found, kw)
		}
	}
	if len(found) > 0 {
		if len(found) > 3 {
			found = found[:3]
		}
		return e.result(src, url, KindPaywall, StatusWarning,
			fmt.Sprintf("Possible paywall detected: %s", strings.Join(found, ", ")))
	}

	doc, err := page.Parse(resp.Body)
	if err != nil {
		return e.result(src, url, KindPaywall, StatusError,
			fmt.Sprintf("Check failed: %v", err))
	}
	current := len(doc.Text())

	previous, ok, err := e.differ.PreviousTextLength(ctx, url)
	if err != nil {
		return e.result(src, url, KindPaywall, StatusError,
			fmt.Sprintf("Check failed: %v", err))
	}
	if ok && previous > 0 && current < previous/2 {
		pct := float64(previous-current) / float64(previous) * 100
		return e.result(src, url, KindPaywall, StatusWarning,
			fmt.Sprintf("Content length reduced by %.0f%%", pct))
	}

	return e.result(src, url, KindPaywall, StatusOK, "No paywall detected")
}

// --- structure --------------------------------------------------------------

// checkStructure tests each of the source's expected CSS selectors against
// the parsed markup. All selectors missing is a major shift (error); some
// missing is a minor one (warning).
func (e *Engine) checkStructure(ctx context.Context, src config.Source, url string, _ bool) Result {
	resp, err := e.client.Get(ctx, url)
	if err != nil || resp.StatusCode != http.StatusOK {
		return e.result(src, url, KindStructure, StatusError,
			"Failed to fetch page for structure check")
	}

	if len(src.ExpectedSelectors) == 0 {
		return e.result(src, url, KindStructure, StatusOK, "No expected selectors configured")
	}

	doc, err := page.Parse(resp.Body)
	if err != nil {
		return e.result(src, url, KindStructure, StatusError,
			fmt.Sprintf("Check failed: %v", err))
	}

	var missing []string
	for _, sel := range src.ExpectedSelectors {
		found, err := doc.Matches(sel)
		if err != nil {
			return e.result(src, url, KindStructure, StatusError,
				fmt.Sprintf("Check failed: %v", err))
		}
		if !found {
			missing = append(missing, sel)
		}
	}

	switch {
	case len(missing) == len(src.ExpectedSelectors):
		return e.result(src, url, KindStructure, StatusError,
			fmt.Sprintf("All expected selectors missing: %s", strings.Join(missing, ", ")))
	case len(missing) > 0:
		return e.result(src, url, KindStructure, StatusWarning,
			fmt.Sprintf("Some selectors missing: %s", strings.Join(missing, ", ")))
	default:
		return e.result(src, url, KindStructure, StatusOK,
			fmt.Sprintf("All %d expected selectors found", len(src.ExpectedSelectors)))
	}
}

// --- staleness --------------------------------------------------------------

// checkStaleness reads a last-modified signal (HTTP header first, then page
// metadata) and compares the age against the source's threshold. No reliable
// signal is OK — absence of evidence is not evidence of staleness.
func (e *Engine) checkStaleness(ctx context.Context, src config.Source, url string, _ bool) Result {
	resp, err := e.client.Get(ctx, url)
	if err != nil || resp.StatusCode != http.StatusOK {
		return e.result(src, url, KindStaleness, StatusError,
			"Failed to fetch page for staleness check")
	}

	var modified time.Time
	var haveSignal bool

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			modified = t
			haveSignal = true
		}
	}
	if !haveSignal {
		if doc, err := page.Parse(resp.Body); err == nil {
			modified, haveSignal = doc.LastModified()
		}
	}
	if !haveSignal {
		return e.result(src, url, KindStaleness, StatusOK,
			"No staleness indicators found (unable to determine age)")
	}

	days := int(e.now().Sub(modified).Hours() / 24)
	if days > src.StalenessDays {
		return e.result(src, url, KindStaleness, StatusWarning,
			fmt.Sprintf("Content not updated in %d days (threshold: %d)", days, src.StalenessDays))
	}
	return e.result(src, url, KindStaleness, StatusOK,
		fmt.Sprintf("Content updated %d days ago", days))
}
