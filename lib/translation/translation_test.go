package translation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	Configure("../../locales", "ru_RU.UTF-8")
	assert.Equal(t, "ru", GetLanguage())
	assert.Equal(t, "🔙 Назад", Translate("button_back"))

	Configure("../../locales", "")
	assert.Equal(t, "en", GetLanguage())
	assert.Equal(t, "🔙 Back", Translate("button_back"))
	assert.Equal(t, "12 pairs loaded", fmt.Sprintf(Translate("symbols_refreshed_format"), 12))
}

func TestConfigure_UnsupportedLocaleFallsBackToEnglish(t *testing.T) {
	for _, lang := range []string{"de_DE.UTF-8", "fr", "zz"} {
		Configure("../../locales", lang)
		assert.Equal(t, "en", GetLanguage(), lang)
		assert.Equal(t, "🔙 Back", Translate("button_back"), lang)
		assert.NotEqual(t, "volume_alert_format", Translate("volume_alert_format"), lang)
	}
}

func TestTranslate_UnknownKeyFallsBack(t *testing.T) {
	Configure("../../locales", "en")
	assert.Equal(t, "no_such_key", Translate("no_such_key"))
}

func TestEveryEnglishKeyHasRussian(t *testing.T) {
	keys := []string{
		"main_menu", "help_message", "volume_alert_format", "alert_details_format",
		"button_open_mexc", "access_denied", "history_item_format",
	}
	for _, key := range keys {
		Configure("../../locales", "en")
		en := Translate(key)
		Configure("../../locales", "ru")
		ru := Translate(key)

		assert.NotEqual(t, key, en, key)
		assert.NotEqual(t, key, ru, key)
		assert.NotEqual(t, en, ru, key)
	}
}
