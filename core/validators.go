package core

import (
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	fr_translations "github.com/go-playground/validator/v10/translations/fr"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	// custom validation tags & texts
	emojiTag  = "emoji"
	emojiText = "doit être un emoji (1 à 4 caractères)"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "ce champ est obligatoire"
)

func init() {
	frLocale := fr.New()
	Translator, _ = ut.New(frLocale, frLocale).GetTranslator("fr")
	Validate = validator.New()
	initValidators(Validate, Translator)
}

// initValidators instantiates the validator for use.
func initValidators(validate *validator.Validate, translator ut.Translator) {
	_ = fr_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(emojiTag, emojiValidation)
	RegisterCustomTranslation(validate, translator, emojiTag, emojiText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// emojiValidation allows the short emoji avatars used on participant and lot cards.
func emojiValidation(fl validator.FieldLevel) bool {
	n := utf8.RuneCountInString(fl.Field().String())
	return n >= 1 && n <= 4
}
