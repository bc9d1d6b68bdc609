package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/armon/go-radix"

	"github.com/hupe1980/dialogmesh/core"
)

// PathResolver rewrites short-hand memory paths into fully qualified scope paths.
type PathResolver interface {
	TransformPath(path string) string
}

// AliasRule rewrites paths starting with Alias into Prefix + remainder + Postfix.
type AliasRule struct {
	Alias   string
	Prefix  string
	Postfix string
}

// Built-in alias rules.
var (
	DollarAlias     = AliasRule{Alias: "$", Prefix: "dialog."}
	HashAlias       = AliasRule{Alias: "#", Prefix: "turn.recognized.intents."}
	AtAtAlias       = AliasRule{Alias: "@@", Prefix: "turn.recognized.entities."}
	AtAlias         = AliasRule{Alias: "@", Prefix: "turn.recognized.entities.", Postfix: "[0]"}
	PercentAlias    = AliasRule{Alias: "%", Prefix: "class."}
	defaultAliasSet = []AliasRule{DollarAlias, HashAlias, AtAtAlias, AtAlias, PercentAlias}
)

// AliasPathResolver applies a single alias rule.
type AliasPathResolver struct {
	rule AliasRule
}

// NewAliasPathResolver creates a resolver for one rule.
func NewAliasPathResolver(alias, prefix, postfix string) *AliasPathResolver {
	return &AliasPathResolver{rule: AliasRule{Alias: strings.TrimSpace(alias), Prefix: strings.TrimSpace(prefix), Postfix: strings.TrimSpace(postfix)}}
}

// TransformPath implements PathResolver.
func (a *AliasPathResolver) TransformPath(path string) string {
	if out, ok := a.rule.apply(strings.TrimSpace(path)); ok {
		return out
	}
	return path
}

// apply rewrites path when it starts with the alias and the next rune is a
// letter or underscore.
func (r AliasRule) apply(path string) (string, bool) {
	if r.Alias == "" || len(path) <= len(r.Alias) || !strings.HasPrefix(path, r.Alias) {
		return "", false
	}
	rest := path[len(r.Alias):]
	next, _ := utf8.DecodeRuneInString(rest)
	if next != '_' && !unicode.IsLetter(next) {
		return "", false
	}
	return strings.TrimRight(r.Prefix+rest+r.Postfix, "."), true
}

// ResolverSet holds an alias table and applies the longest matching alias.
// It is immutable after construction and safe for concurrent use.
type ResolverSet struct {
	tree  *radix.Tree
	rules []AliasRule
}

// NewResolverSet validates and indexes an alias table. Duplicate aliases and
// rules whose prefix would be rewritten again by another alias fail with
// core.ErrPathResolutionAmbiguous. Configuration errors are meant to be fatal
// at startup.
func NewResolverSet(rules ...AliasRule) (*ResolverSet, error) {
	rs := &ResolverSet{tree: radix.New()}

	for _, r := range rules {
		r.Alias = strings.TrimSpace(r.Alias)
		if r.Alias == "" {
			return nil, fmt.Errorf("%w: empty alias", core.ErrPathResolutionAmbiguous)
		}
		if _, exists := rs.tree.Get(r.Alias); exists {
			return nil, fmt.Errorf("%w: alias %q registered twice", core.ErrPathResolutionAmbiguous, r.Alias)
		}
		rs.tree.Insert(r.Alias, r)
		rs.rules = append(rs.rules, r)
	}

	// A rewritten path starts with a rule's prefix; if that prefix can match
	// an alias again the table is not idempotent.
	for _, r := range rs.rules {
		probe := r.Prefix + "x"
		if _, rewritten := rs.transform(probe); rewritten {
			return nil, fmt.Errorf("%w: prefix %q of alias %q is itself aliased", core.ErrPathResolutionAmbiguous, r.Prefix, r.Alias)
		}
	}

	sort.SliceStable(rs.rules, func(i, j int) bool { return len(rs.rules[i].Alias) > len(rs.rules[j].Alias) })

	return rs, nil
}

// MustResolverSet is like NewResolverSet but panics on error.
func MustResolverSet(rules ...AliasRule) *ResolverSet {
	rs, err := NewResolverSet(rules...)
	if err != nil {
		panic(err)
	}
	return rs
}

// DefaultResolvers returns the built-in alias table ($, #, @@, @, %).
func DefaultResolvers() *ResolverSet {
	return MustResolverSet(defaultAliasSet...)
}

// Rules returns the alias rules longest alias first.
func (rs *ResolverSet) Rules() []AliasRule {
	out := make([]AliasRule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// TransformPath implements PathResolver.
func (rs *ResolverSet) TransformPath(path string) string {
	if out, ok := rs.transform(path); ok {
		return out
	}
	return path
}

func (rs *ResolverSet) transform(path string) (string, bool) {
	trimmed := strings.TrimSpace(path)

	// WalkPath visits matching aliases shortest first.
	var matches []AliasRule
	rs.tree.WalkPath(trimmed, func(_ string, v interface{}) bool {
		matches = append(matches, v.(AliasRule))
		return false
	})

	for i := len(matches) - 1; i >= 0; i-- {
		if out, ok := matches[i].apply(trimmed); ok {
			return out, true
		}
	}
	return "", false
}

var (
	_ PathResolver = (*ResolverSet)(nil)
	_ PathResolver = (*AliasPathResolver)(nil)
)
