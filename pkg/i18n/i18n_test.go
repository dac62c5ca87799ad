package i18n_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medflow/pharmacy-inventory/pkg/i18n"
	"github.com/stretchr/testify/assert"
)

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", i18n.LocaleEnglish},
		{"ar", i18n.LocaleArabic},
		{"ar-EG,ar;q=0.9", i18n.LocaleArabic},
		{"fr-FR, ar;q=0.5, en;q=0.8", i18n.LocaleEnglish},
		{"de, ar;q=0.3", i18n.LocaleArabic},
		{"ar;q=bogus, en", i18n.LocaleEnglish},
		{"ja", i18n.LocaleEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, i18n.ParseAcceptLanguage(tt.header))
		})
	}
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "batch not found", i18n.Translate(i18n.LocaleEnglish, "errors.not_found", map[string]string{"resource": "batch"}))
	assert.Equal(t, "الدفعة", i18n.Translate(i18n.LocaleArabic, "resources.batch", nil))
	assert.Equal(t, "requested 600 but only 500 unallocated",
		i18n.Translate(i18n.LocaleEnglish, "errors.insufficient_unallocated", map[string]string{"requested": "600", "available": "500"}))

	// Unknown locales fall back to English, unknown keys come back unchanged
	assert.Equal(t, "invalid JSON body", i18n.Translate("xx", "errors.invalid_json", nil))
	assert.Equal(t, "errors.nope", i18n.Translate(i18n.LocaleArabic, "errors.nope", nil))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	keys := []string{
		"errors.not_found", "errors.bad_request", "errors.conflict", "errors.internal",
		"errors.validation_failed", "errors.invalid_json", "errors.invalid_reference",
		"errors.insufficient_unallocated", "resources.location", "resources.shelf",
		"resources.batch", "resources.allocation",
	}
	for _, locale := range []string{i18n.LocaleEnglish, i18n.LocaleArabic} {
		assert.True(t, i18n.Supported(locale))
		for _, key := range keys {
			assert.NotEqual(t, key, i18n.Translate(locale, key, nil), "%s missing %s", locale, key)
		}
	}
}

func TestMiddleware(t *testing.T) {
	var got string
	h := i18n.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = i18n.Locale(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ar-SA")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, i18n.LocaleArabic, got)
	assert.Equal(t, i18n.LocaleArabic, rr.Header().Get("Content-Language"))
	assert.Equal(t, i18n.LocaleEnglish, i18n.Locale(context.Background()))
}
