package i18n

import (
	"net/http"
	"strconv"
	"strings"
)

// Middleware picks the response locale from Accept-Language, stores it in the
// request context and announces it in Content-Language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := ParseAcceptLanguage(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", locale)
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}

// ParseAcceptLanguage returns the supported locale with the highest quality
// value in header. Region subtags are ignored, so "ar-EG" selects "ar".
func ParseAcceptLanguage(header string) string {
	best, bestQ := DefaultLocale, 0.0
	for _, part := range strings.Split(header, ",") {
		tag, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			q = f
		}

		primary, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(tag)), "-")
		if q > bestQ && Supported(primary) {
			best, bestQ = primary, q
		}
	}
	return best
}
