// Package i18n localizes the messages clients see in error responses.
// Catalogs are embedded JSON files named after their locale; nested objects
// are flattened to dotted keys ("errors.not_found") on first use.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"
)

//go:embed messages/*.json
var messagesFS embed.FS

const (
	LocaleEnglish = "en"
	LocaleArabic  = "ar"
	DefaultLocale = LocaleEnglish
)

type catalog map[string]string

var catalogs = sync.OnceValue(func() map[string]catalog {
	entries, err := fs.ReadDir(messagesFS, "messages")
	if err != nil {
		panic(fmt.Sprintf("i18n: read catalogs: %v", err))
	}

	out := make(map[string]catalog, len(entries))
	for _, e := range entries {
		locale := strings.TrimSuffix(e.Name(), ".json")
		data, err := messagesFS.ReadFile("messages/" + e.Name())
		if err != nil {
			panic(fmt.Sprintf("i18n: read %s: %v", e.Name(), err))
		}
		var tree map[string]any
		if err := json.Unmarshal(data, &tree); err != nil {
			panic(fmt.Sprintf("i18n: parse %s: %v", e.Name(), err))
		}
		c := catalog{}
		flatten("", tree, c)
		out[locale] = c
	}
	return out
})

func flatten(prefix string, tree map[string]any, into catalog) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := v.(type) {
		case string:
			into[key] = v
		case map[string]any:
			flatten(key, v, into)
		}
	}
}

// Supported reports whether a catalog exists for locale
func Supported(locale string) bool {
	_, ok := catalogs()[locale]
	return ok
}

// Translate looks key up in locale, then in the default locale, and fills
// {name} placeholders from params. Unknown keys are returned as is.
func Translate(locale, key string, params map[string]string) string {
	msg, ok := catalogs()[locale][key]
	if !ok {
		if msg, ok = catalogs()[DefaultLocale][key]; !ok {
			return key
		}
	}
	for k, v := range params {
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return msg
}

// T translates key for the locale carried by ctx
func T(ctx context.Context, key string, params map[string]string) string {
	return Translate(Locale(ctx), key, params)
}

type localeKey struct{}

// WithLocale returns a copy of ctx carrying locale
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// Locale returns the locale carried by ctx, DefaultLocale if none
func Locale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}
