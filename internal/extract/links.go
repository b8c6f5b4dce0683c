package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"ragdocs/internal/apperr"
)

// LinkFilter narrows the links found on a page before they are queued.
type LinkFilter struct {
	// SameHost keeps only links on the seed's host.
	SameHost bool
	// PathPrefix keeps only links under the seed's directory.
	PathPrefix bool
	// Exclude drops links matching any of these regular expressions.
	Exclude []string
}

// Validate reports the first exclusion that is not a valid regular expression.
func (f LinkFilter) Validate() error {
	_, err := f.patterns()
	return err
}

func (f LinkFilter) patterns() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(f.Exclude))
	for _, ex := range f.Exclude {
		re, err := regexp.Compile(ex)
		if err != nil {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("invalid exclusion pattern %q", ex), err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// Apply returns the links that pass the filter, deduplicated and
// fragment-free. It fails when an exclusion is not a valid regular expression.
func (f LinkFilter) Apply(seed string, links []string) ([]string, error) {
	patterns, err := f.patterns()
	if err != nil {
		return nil, err
	}
	seedU, err := url.Parse(seed)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("invalid url %q", seed), err)
	}
	prefix := seedU.Path
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		prefix = prefix[:i+1]
	}

	var out []string
	seen := make(map[string]bool)
	for _, link := range links {
		linkU, err := url.Parse(link)
		if err != nil {
			continue
		}
		if f.SameHost && linkU.Host != seedU.Host {
			continue
		}
		if f.PathPrefix && (linkU.Host != seedU.Host || !strings.HasPrefix(linkU.Path, prefix)) {
			continue
		}

		linkU.Fragment = ""
		normalized := linkU.String()

		excluded := false
		for _, re := range patterns {
			if re.MatchString(normalized) {
				excluded = true
				break
			}
		}
		if excluded || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out, nil
}
