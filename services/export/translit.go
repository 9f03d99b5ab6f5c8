package export

import (
	"regexp"
	"strings"
)

// cyrillicToLatin is the fixed mapping applied to emoji shortcodes before
// they are sent to Mattermost, which only accepts ASCII emoji names.
var cyrillicToLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "YO",
	'Ж': "ZH", 'З': "Z", 'И': "I", 'Й': "Y", 'К': "K", 'Л': "L", 'М': "M",
	'Н': "N", 'О': "O", 'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U",
	'Ф': "F", 'Х': "H", 'Ц': "TS", 'Ч': "CH", 'Ш': "SH", 'Щ': "SCH",
	'Ъ': "", 'Ы': "Y", 'Ь': "", 'Э': "E", 'Ю': "YU", 'Я': "YA",
}

var (
	nonEmojiChars       = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// transliterateCyrillic maps Cyrillic characters to Latin and sanitizes the
// result down to [a-zA-Z0-9_] with single underscores and no leading or
// trailing underscore.
func transliterateCyrillic(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		// Hard and soft signs map to the empty string and fall through to
		// sanitization, turning into an underscore.
		if latin := cyrillicToLatin[r]; latin != "" {
			b.WriteString(latin)
			continue
		}
		b.WriteRune(r)
	}

	out := nonEmojiChars.ReplaceAllString(b.String(), "_")
	out = repeatedUnderscores.ReplaceAllString(out, "_")
	return strings.Trim(out, "_")
}
