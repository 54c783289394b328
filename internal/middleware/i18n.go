package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var LocaleKey = localeContextKey{}

// SupportedLocales are the prompt locales understood by the image providers.
var SupportedLocales = []language.Tag{language.English, language.Indonesian}

// I18N resolves the request locale from X-Locale, then Accept-Language, then
// defaultLocale, and stores its base language code in the context.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	matcher := newMatcher(defaultLocale)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, matcher)
			w.Header().Set("Content-Language", locale)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// newMatcher puts the default locale first so it wins when nothing matches.
func newMatcher(defaultLocale string) language.Matcher {
	tags := make([]language.Tag, 0, len(SupportedLocales))
	if def, err := language.Parse(strings.TrimSpace(defaultLocale)); err == nil {
		for _, t := range SupportedLocales {
			if base(t) == base(def) {
				tags = append(tags, t)
			}
		}
	}
	for _, t := range SupportedLocales {
		if len(tags) > 0 && base(tags[0]) == base(t) {
			continue
		}
		tags = append(tags, t)
	}
	return language.NewMatcher(tags)
}

func detectLocale(r *http.Request, matcher language.Matcher) string {
	var prefs []language.Tag
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(v); err == nil {
			prefs = append(prefs, tag)
		}
	}
	if len(prefs) == 0 {
		if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil {
			prefs = tags
		}
	}
	tag, _, _ := matcher.Match(prefs...)
	return base(tag)
}

func base(tag language.Tag) string {
	b, _ := tag.Base()
	return b.String()
}

// LocaleFromContext returns the locale resolved by I18N, or "en".
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "en"
}
