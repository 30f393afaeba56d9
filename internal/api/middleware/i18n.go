package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Kontext- und Session-Schlüssel
const (
	languageKey   = "language"
	translatorKey = "translator"
)

// Translator hält die Übersetzungen aller Sprachen
type Translator struct {
	bundle      *i18n.Bundle
	matcher     language.Matcher
	defaultLang string
	supported   map[string]bool
}

// NewTranslator lädt die eingebetteten Sprachdateien
func NewTranslator(defaultLanguage string) (*Translator, error) {
	// Standardsprache festlegen, falls nicht angegeben
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	defaultTag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path.Base(file), err)
		}
	}

	tags := bundle.LanguageTags()
	supported := make(map[string]bool, len(tags))
	for _, tag := range tags {
		base, _ := tag.Base()
		supported[base.String()] = true
	}
	if !supported[defaultLanguage] {
		return nil, fmt.Errorf("no translations for default language %q", defaultLanguage)
	}

	return &Translator{
		bundle:      bundle,
		matcher:     language.NewMatcher(tags),
		defaultLang: defaultLanguage,
		supported:   supported,
	}, nil
}

// Supports meldet, ob für lang Übersetzungen vorliegen
func (t *Translator) Supports(lang string) bool {
	return t.supported[lang]
}

// Default gibt die Standardsprache zurück
func (t *Translator) Default() string {
	return t.defaultLang
}

// Match wählt die beste Sprache für einen Accept-Language-Header
func (t *Translator) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.defaultLang
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return t.defaultLang
	}
	tag, _, confidence := t.matcher.Match(prefs...)
	if confidence == language.No {
		return t.defaultLang
	}
	base, _ := tag.Base()
	if !t.supported[base.String()] {
		return t.defaultLang
	}
	return base.String()
}

// Translate übersetzt messageID; unbekannte Schlüssel werden unverändert zurückgegeben
func (t *Translator) Translate(lang, messageID string, data map[string]interface{}) string {
	localizer := i18n.NewLocalizer(t.bundle, lang, t.defaultLang)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Keine Übersetzung gefunden für Schlüssel: '%s' (%s)", messageID, lang)
		return messageID
	}
	return msg
}

// I18n erstellt eine Middleware für die Internationalisierung.
// Reihenfolge: ?lang= (wird in der Session gespeichert), Session, Accept-Language, Standard.
func I18n(t *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && t.Supports(lang) {
			session.Set(languageKey, lang)
			if err := session.Save(); err != nil {
				log.WithError(err).Debug("Failed to save language in session")
			}
		} else {
			lang = ""
			if v, ok := session.Get(languageKey).(string); ok && t.Supports(v) {
				lang = v
			}
		}
		if lang == "" {
			lang = t.Match(c.GetHeader("Accept-Language"))
		}

		c.Set(languageKey, lang)
		c.Set(translatorKey, t)
		c.Next()
	}
}

// Language gibt die für die Anfrage gewählte Sprache zurück
func Language(c *gin.Context) string {
	return c.GetString(languageKey)
}

// T übersetzt messageID in die Sprache der Anfrage
func T(c *gin.Context, messageID string, data map[string]interface{}) string {
	v, ok := c.Get(translatorKey)
	if !ok {
		return messageID
	}
	return v.(*Translator).Translate(Language(c), messageID, data)
}
