// Package links computes the page-to-page reference graph of a collective
// from markdown content. Hyperlinks are classified as absolute,
// root-relative, or relative; the ones that resolve into the collective's
// own page set are reduced to page ids for backlink computation.
package links

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	pkgerrors "github.com/collectivehq/pagesearch/pkg/errors"
	"github.com/collectivehq/pagesearch/pkg/metrics"
)

// Collective is the tenant context needed to resolve root-relative links:
// its numeric id and the display name used in URLs.
type Collective struct {
	ID   int64
	Name string
}

// Reference is a resolved page-to-page link. The extractor produces these
// transiently; persistence belongs to the caller.
type Reference struct {
	SourceID int64 `json:"source_id"`
	TargetID int64 `json:"target_id"`
}

var (
	absoluteRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	// slugIDRe matches paths whose last segment is an ASCII slug followed
	// by a hyphen and a numeric page id, e.g. /welcome-123.
	slugIDRe = regexp.MustCompile(`(?:^|/)[\x20-\x7E]*-(\d+)(?:[?#][\x20-\x7E]*)?$`)
	// fileIDRe matches a fileId query parameter, e.g. ?fileId=55.
	fileIDRe = regexp.MustCompile(`[?&]fileId=(\d+)(?:[&#]|$)`)
)

// Extractor resolves markdown links to page ids for one deployment.
type Extractor struct {
	webRoot      string
	appPath      string
	trustedHosts []*regexp.Regexp
	metrics      *metrics.Metrics
}

// NewExtractor creates an Extractor. webRoot is the server's URL path
// prefix ("" for a root install), appPath the application mount point
// (e.g. "/apps/collectives/"). trustedHosts may contain '*' wildcards;
// when empty, only localhost links are considered internal. metrics may
// be nil.
func NewExtractor(webRoot, appPath string, trustedHosts []string, m *metrics.Metrics) *Extractor {
	if appPath == "" {
		appPath = "/apps/collectives/"
	}
	hosts := trustedHosts
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	patterns := make([]*regexp.Regexp, 0, len(hosts))
	for _, h := range hosts {
		patterns = append(patterns, hostPattern(h))
	}
	return &Extractor{
		webRoot:      strings.TrimSuffix(webRoot, "/"),
		appPath:      appPath,
		trustedHosts: patterns,
		metrics:      m,
	}
}

// hostPattern compiles a trusted-host entry into an anchored regexp,
// expanding '*' to a word-character run.
func hostPattern(host string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(strings.ToLower(host))
	quoted = strings.ReplaceAll(quoted, `\*`, `\w*`)
	return regexp.MustCompile(`^` + quoted + `(?::\d+)?$`)
}

// LinkedDocumentIDs parses markdown content and returns the deduplicated,
// ascending set of page ids referenced by links that resolve into the
// given collective.
func (e *Extractor) LinkedDocumentIDs(content string, collective Collective) ([]int64, error) {
	hrefs, err := e.collectHrefs(content)
	if err != nil {
		return nil, err
	}

	ownPath := e.collectivePathRe(collective)
	idSet := make(map[int64]struct{})
	for _, href := range hrefs {
		candidate, ok := e.classify(href, ownPath)
		if !ok {
			continue
		}
		if id, ok := extractPageID(candidate); ok {
			idSet[id] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if e.metrics != nil {
		e.metrics.LinksExtractedTotal.Add(float64(len(ids)))
	}
	return ids, nil
}

// References pairs a source page with every target LinkedDocumentIDs
// resolved, skipping self-references.
func References(sourceID int64, targetIDs []int64) []Reference {
	refs := make([]Reference, 0, len(targetIDs))
	for _, target := range targetIDs {
		if target == sourceID {
			continue
		}
		refs = append(refs, Reference{SourceID: sourceID, TargetID: target})
	}
	return refs
}

// collectHrefs parses the markdown and gathers the destination of every
// inline link node in document order.
func (e *Extractor) collectHrefs(content string) ([]string, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader([]byte(content)))

	var hrefs []string
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			hrefs = append(hrefs, string(link.Destination))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrMarkdownParse, err)
	}
	return hrefs, nil
}

// classify reduces an href to a page-path candidate. Absolute links are
// kept only for trusted hosts and then re-classified by their path;
// root-relative links must match the collective's own URL prefix;
// everything else is relative and kept as given.
func (e *Extractor) classify(href string, ownPath *regexp.Regexp) (string, bool) {
	if absoluteRe.MatchString(href) {
		u, err := url.Parse(href)
		if err != nil {
			return "", false
		}
		if !e.trustedHost(u.Hostname()) {
			return "", false
		}
		href = u.Path
		if u.RawQuery != "" {
			href += "?" + u.RawQuery
		}
		if u.Fragment != "" {
			href += "#" + u.Fragment
		}
	}
	if strings.HasPrefix(href, "/") {
		loc := ownPath.FindStringIndex(href)
		if loc == nil {
			return "", false
		}
		return href[loc[1]:], true
	}
	return href, true
}

func (e *Extractor) trustedHost(host string) bool {
	host = strings.ToLower(host)
	for _, p := range e.trustedHosts {
		if p.MatchString(host) {
			return true
		}
	}
	return false
}

// collectivePathRe matches the URL prefix of the collective's own pages:
// web root, optional index.php, the application path, and either the
// collective's URL-encoded display name or an id-suffixed slug.
func (e *Extractor) collectivePathRe(c Collective) *regexp.Regexp {
	name := regexp.QuoteMeta(url.PathEscape(c.Name))
	rawName := regexp.QuoteMeta(c.Name)
	pattern := fmt.Sprintf(`^%s(?:/index\.php)?%s(?:[^/?#]*-%d|%s|%s)(?:/|\b)`,
		regexp.QuoteMeta(e.webRoot),
		regexp.QuoteMeta(e.appPath),
		c.ID,
		name,
		rawName,
	)
	return regexp.MustCompile(pattern)
}

// extractPageID pulls a page id out of a surviving href: either the
// trailing digits of a slug-id path segment or a fileId query parameter.
func extractPageID(href string) (int64, bool) {
	if m := fileIDRe.FindStringSubmatch(href); m != nil {
		return parseID(m[1])
	}
	if m := slugIDRe.FindStringSubmatch(href); m != nil {
		return parseID(m[1])
	}
	return 0, false
}

func parseID(digits string) (int64, bool) {
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
