package utils

import (
	"embed"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// SupportedLanguages lists the tags with a bundled message file
var SupportedLanguages = []language.Tag{language.English, language.French}

var (
	// Bundle is the global translation bundle
	Bundle *i18n.Bundle
	// Localizer is the default localizer
	Localizer *i18n.Localizer

	matcher = language.NewMatcher(SupportedLanguages)
)

func init() {
	if err := InitI18n(); err != nil {
		Log.Error("Failed to initialize i18n: %v", err)
	}
}

// InitI18n loads the embedded message files into a fresh bundle
func InitI18n() error {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, name := range []string{"locales/active.en.toml", "locales/active.fr.toml"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, name); err != nil {
			return err
		}
	}

	Bundle = bundle
	Localizer = i18n.NewLocalizer(Bundle, language.English.String())
	return nil
}

// MatchLanguage picks the best supported language for the given preferences,
// e.g. a query value or an Accept-Language header
func MatchLanguage(prefs ...string) string {
	tag, _ := language.MatchStrings(matcher, prefs...)
	base, _ := tag.Base()
	return base.String()
}

// GetLocalizer returns a localizer for the specified language
func GetLocalizer(lang string) *i18n.Localizer {
	if lang == "" {
		lang = "en"
	}
	return i18n.NewLocalizer(Bundle, lang)
}

// T translates a message ID
func T(localizer *i18n.Localizer, messageID string) string {
	if localizer == nil {
		localizer = Localizer
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID: messageID,
	})
	if err != nil {
		Log.Debug("Translation error for '%s': %v", messageID, err)
		return messageID
	}
	return msg
}
