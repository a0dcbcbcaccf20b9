package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

// Catalog holds the message bundle for every embedded locale.
type Catalog struct {
	bundle      *i18n.Bundle
	defaultLang string
	logger      *slog.Logger
}

// New loads every embedded locale. lang is the fallback language.
func New(lang string, logger *slog.Logger) (*Catalog, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		logger.Debug("loaded locale file", "file", e.Name())
	}

	return &Catalog{bundle: bundle, defaultLang: tag.String(), logger: logger}, nil
}

// Languages lists the loaded language tags.
func (c *Catalog) Languages() []string {
	tags := c.bundle.LanguageTags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

// Localizer returns a localizer preferring langs in order, then the default.
func (c *Catalog) Localizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(c.bundle, append(langs, c.defaultLang)...)
}

// Translator returns a Translator bound to lang.
func (c *Catalog) Translator(lang string) Translator {
	return Translator{loc: c.Localizer(lang), logger: c.logger}
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func (c *Catalog) localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return c.Localizer()
}

// T translates a message by ID using the context's localizer.
func (c *Catalog) T(ctx context.Context, msgID string) string {
	return Translator{loc: c.localizerFromCtx(ctx), logger: c.logger}.T(msgID, nil)
}

// Td translates a message by ID with template data.
func (c *Catalog) Td(ctx context.Context, msgID string, data map[string]any) string {
	return Translator{loc: c.localizerFromCtx(ctx), logger: c.logger}.T(msgID, data)
}

// Tp translates a pluralized message by ID.
func (c *Catalog) Tp(ctx context.Context, msgID string, count int) string {
	return Translator{loc: c.localizerFromCtx(ctx), logger: c.logger}.Plural(msgID, count, nil)
}

// Translator localizes messages for one fixed language.
type Translator struct {
	loc    *i18n.Localizer
	logger *slog.Logger
}

// T translates msgID. A missing message yields msgID itself.
func (t Translator) T(msgID string, data map[string]any) string {
	s, err := t.loc.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		t.logger.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Plural translates msgID for count. data may be nil; Count is always set.
func (t Translator) Plural(msgID string, count int, data map[string]any) string {
	td := map[string]any{"Count": count}
	for k, v := range data {
		td[k] = v
	}
	s, err := t.loc.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: td,
	})
	if err != nil {
		t.logger.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}
