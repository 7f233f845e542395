package translation

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/leonelquinteros/gotext"
	log "github.com/sirupsen/logrus"
)

const fallbackLanguage = "en"

// Configure loads the gettext catalogue for lang from dir. Values such as
// "ru_RU.UTF-8" are reduced to their language part. A language without a
// catalogue under dir falls back to English.
func Configure(dir, lang string) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "._-"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "c" || lang == "posix" {
		lang = fallbackLanguage
	}
	if !hasCatalogue(dir, lang) {
		log.Warnf("no translations for %q in %s, using %s", lang, dir, fallbackLanguage)
		lang = fallbackLanguage
	}
	gotext.Configure(dir, lang, "default")
}

func hasCatalogue(dir, lang string) bool {
	info, err := os.Stat(filepath.Join(dir, lang, "default.po"))
	return err == nil && !info.IsDir()
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return fallbackLanguage
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
